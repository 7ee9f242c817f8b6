// Package disk provides a filesystem-backed blob store. The filesystem
// is abstracted behind afero so tests run against an in-memory fs and
// production against the OS.
package disk

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"antbox-backend/pkg/errors"
)

// Provider stores each blob as one file under a base directory. Keys
// are sanitized to their base name so a hostile key cannot escape the
// directory.
type Provider struct {
	fs   afero.Fs
	base string
}

// NewProvider creates a blob store rooted at base on the given fs.
func NewProvider(fs afero.Fs, base string) (*Provider, error) {
	if err := fs.MkdirAll(base, 0o750); err != nil {
		return nil, errors.NewUnknownError("creating blob directory", err)
	}
	return &Provider{fs: fs, base: base}, nil
}

// NewOsProvider creates a blob store on the real filesystem.
func NewOsProvider(base string) (*Provider, error) {
	return NewProvider(afero.NewOsFs(), base)
}

func (p *Provider) path(key string) string {
	return filepath.Join(p.base, filepath.Base(key))
}

// Put writes the blob, replacing any existing file for the key.
func (p *Provider) Put(_ context.Context, key string, data []byte) error {
	if err := afero.WriteFile(p.fs, p.path(key), data, 0o640); err != nil {
		return errors.NewUnknownError("writing blob "+key, err)
	}
	return nil
}

// Get reads the blob stored under key.
func (p *Provider) Get(_ context.Context, key string) ([]byte, error) {
	data, err := afero.ReadFile(p.fs, p.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNodeNotFoundError(key)
		}
		return nil, errors.NewUnknownError("reading blob "+key, err)
	}
	return data, nil
}

// Delete removes the blob stored under key.
func (p *Provider) Delete(_ context.Context, key string) error {
	if err := p.fs.Remove(p.path(key)); err != nil {
		if os.IsNotExist(err) {
			return errors.NewNodeNotFoundError(key)
		}
		return errors.NewUnknownError("deleting blob "+key, err)
	}
	return nil
}

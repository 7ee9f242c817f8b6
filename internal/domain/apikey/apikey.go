// Package apikey models secret-based principals. The secret is the
// credential; the group grants the authority.
package apikey

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"antbox-backend/internal/domain/shared"
	"antbox-backend/pkg/errors"
)

// MinSecretLength is the shortest secret ever issued or accepted.
const MinSecretLength = 16

// APIKey is the credential record.
type APIKey struct {
	UUID        string `json:"uuid"`
	Secret      string `json:"secret"`
	Group       string `json:"group"`
	Active      bool   `json:"active"`
	Description string `json:"description,omitempty"`
	CreatedTime string `json:"createdTime,omitempty"`
}

// New mints an active key for a group with a generated secret.
func New(group, description string) APIKey {
	return APIKey{
		UUID:        shared.NewUUID(),
		Secret:      GenerateSecret(),
		Group:       group,
		Active:      true,
		Description: description,
		CreatedTime: shared.NowISO(),
	}
}

// GenerateSecret produces a 24-character URL-safe random secret.
func GenerateSecret() string {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the platform entropy source is
		// broken; at that point no credential can be trusted.
		panic(fmt.Sprintf("apikey: entropy source unavailable: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// Validate aggregates field-level failures.
func (k APIKey) Validate() error {
	var errs []error
	if k.UUID == "" {
		errs = append(errs, fmt.Errorf("uuid: required"))
	}
	if len(k.Secret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("secret: must be at least %d characters", MinSecretLength))
	}
	if k.Group == "" {
		errs = append(errs, fmt.Errorf("group: required"))
	}
	if err := errors.NewValidationErrors(errs...); err != nil {
		return err
	}
	return nil
}

// Redacted returns a copy safe for listings: enough of the secret to
// recognize the key, never enough to use it.
func (k APIKey) Redacted() APIKey {
	out := k
	if len(k.Secret) > 4 {
		out.Secret = k.Secret[:4] + "****"
	} else {
		out.Secret = "****"
	}
	return out
}

package memory

import (
	"context"
	"sort"
	"sync"

	"antbox-backend/internal/domain/audit"
	"antbox-backend/internal/repository"
	"antbox-backend/pkg/errors"
)

// AuditRepository keeps append-only event streams keyed by stream id. A
// single mutex serializes appends, which also makes per-stream sequence
// assignment monotonic.
type AuditRepository struct {
	mu      sync.RWMutex
	streams map[string]*audit.Stream
}

// NewAuditRepository creates an empty audit store.
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{streams: make(map[string]*audit.Stream)}
}

// Append stamps the entry with the next sequence of its stream and stores
// it. The stream is created on first append.
func (r *AuditRepository) Append(_ context.Context, streamID, mimetype string, entry audit.Entry) (audit.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stream, ok := r.streams[streamID]
	if !ok {
		stream = &audit.Stream{ID: streamID, Mimetype: mimetype}
		r.streams[streamID] = stream
	}

	entry.Sequence = int64(len(stream.Entries)) + 1
	stream.Entries = append(stream.Entries, entry)
	return entry, nil
}

// GetStream returns a copy of the stream with the given id.
func (r *AuditRepository) GetStream(_ context.Context, streamID string) (*audit.Stream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stream, ok := r.streams[streamID]
	if !ok {
		return nil, errors.NewNodeNotFoundError(streamID)
	}
	return cloneStream(stream), nil
}

// ListStreams returns streams whose mimetype matches, ordered by stream id.
// Empty mimetype matches everything.
func (r *AuditRepository) ListStreams(_ context.Context, mimetype string) ([]*audit.Stream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*audit.Stream, 0, len(r.streams))
	for _, stream := range r.streams {
		if mimetype == "" || stream.Mimetype == mimetype {
			out = append(out, cloneStream(stream))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func cloneStream(s *audit.Stream) *audit.Stream {
	cp := *s
	cp.Entries = append([]audit.Entry(nil), s.Entries...)
	return &cp
}

var _ repository.AuditRepository = (*AuditRepository)(nil)

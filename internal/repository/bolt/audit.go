package bolt

import (
	"context"
	"encoding/json"

	bolt "go.etcd.io/bbolt"

	"antbox-backend/internal/domain/audit"
	"antbox-backend/internal/repository"
	"antbox-backend/pkg/errors"
)

// AuditRepository stores each stream as one JSON value keyed by stream id.
// bbolt's single-writer transactions serialize appends, so per-stream
// sequences stay monotonic without extra locking.
type AuditRepository struct {
	db *bolt.DB
}

func (r *AuditRepository) Append(_ context.Context, streamID, mimetype string, entry audit.Entry) (audit.Entry, error) {
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAudit)

		stream := audit.Stream{ID: streamID, Mimetype: mimetype}
		if data := b.Get([]byte(streamID)); data != nil {
			if err := json.Unmarshal(data, &stream); err != nil {
				return errors.NewUnknownError("decode audit stream", err)
			}
		}

		entry.Sequence = int64(len(stream.Entries)) + 1
		stream.Entries = append(stream.Entries, entry)

		data, err := json.Marshal(stream)
		if err != nil {
			return errors.NewUnknownError("encode audit stream", err)
		}
		return b.Put([]byte(streamID), data)
	})
	if err != nil {
		return audit.Entry{}, err
	}
	return entry, nil
}

func (r *AuditRepository) GetStream(_ context.Context, streamID string) (*audit.Stream, error) {
	var stream audit.Stream
	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketAudit).Get([]byte(streamID))
		if data == nil {
			return errors.NewNodeNotFoundError(streamID)
		}
		return json.Unmarshal(data, &stream)
	})
	if err != nil {
		return nil, err
	}
	return &stream, nil
}

func (r *AuditRepository) ListStreams(_ context.Context, mimetype string) ([]*audit.Stream, error) {
	var out []*audit.Stream
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAudit).ForEach(func(_, data []byte) error {
			var stream audit.Stream
			if err := json.Unmarshal(data, &stream); err != nil {
				return errors.NewUnknownError("decode audit stream", err)
			}
			if mimetype == "" || stream.Mimetype == mimetype {
				out = append(out, &stream)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

var _ repository.AuditRepository = (*AuditRepository)(nil)

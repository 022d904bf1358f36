package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/convsync/internal/model"
	"github.com/roach88/convsync/internal/upload"
)

// RecordOrphan stores o, replacing any orphan with the same digest.
func (s *Store) RecordOrphan(ctx context.Context, o upload.Orphan) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orphan_uploads (digest, name, file_url, file_type, recorded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(digest) DO UPDATE SET
			name = excluded.name,
			file_url = excluded.file_url,
			file_type = excluded.file_type,
			recorded_at = excluded.recorded_at
	`, o.Digest, o.Name, o.Attachment.URL, string(o.Attachment.Kind), o.RecordedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("record orphan: %w", err)
	}
	return nil
}

// ClaimOrphan removes the orphan with digest and returns it if it was
// recorded at or after notBefore. An expired orphan is removed and not
// returned.
func (s *Store) ClaimOrphan(ctx context.Context, digest string, notBefore time.Time) (upload.Orphan, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return upload.Orphan{}, false, fmt.Errorf("claim orphan: begin: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var o upload.Orphan
	var kind string
	var recorded int64
	err = tx.QueryRowContext(ctx, `
		SELECT digest, name, file_url, file_type, recorded_at
		FROM orphan_uploads
		WHERE digest = ?
	`, digest).Scan(&o.Digest, &o.Name, &o.Attachment.URL, &kind, &recorded)
	if errors.Is(err, sql.ErrNoRows) {
		return upload.Orphan{}, false, nil
	}
	if err != nil {
		return upload.Orphan{}, false, fmt.Errorf("claim orphan: query: %w", err)
	}
	o.Attachment.Kind = model.AttachmentKind(kind)
	o.RecordedAt = time.UnixMilli(recorded).UTC()

	if _, err := tx.ExecContext(ctx, `DELETE FROM orphan_uploads WHERE digest = ?`, digest); err != nil {
		return upload.Orphan{}, false, fmt.Errorf("claim orphan: delete: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return upload.Orphan{}, false, fmt.Errorf("claim orphan: commit: %w", err)
	}

	if o.RecordedAt.Before(notBefore) {
		return upload.Orphan{}, false, nil
	}
	return o, true, nil
}

// PruneOrphans deletes orphans recorded before cutoff and returns how many
// were removed.
func (s *Store) PruneOrphans(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM orphan_uploads WHERE recorded_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune orphans: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune orphans: %w", err)
	}
	return n, nil
}

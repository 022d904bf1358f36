package cache

import (
	"context"
	"fmt"

	"github.com/roach88/convsync/internal/model"
)

// LoadRecents returns the cached recent list, most recent first.
// Rows whose conversation key no longer parses are skipped.
func (s *Store) LoadRecents(ctx context.Context) ([]model.RecentEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation, name, avatar_url, unread_count
		FROM recents
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query recents: %w", err)
	}
	defer rows.Close()

	entries := []model.RecentEntry{}
	for rows.Next() {
		var key string
		var e model.RecentEntry
		if err := rows.Scan(&key, &e.Name, &e.AvatarURL, &e.UnreadCount); err != nil {
			return nil, fmt.Errorf("scan recent: %w", err)
		}
		ref, err := model.ParseConversationKey(key)
		if err != nil {
			s.logger.Warn("skipping cached recent", "conversation", key, "error", err)
			continue
		}
		e.Ref = ref
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recents: %w", err)
	}

	return entries, nil
}

// SaveRecents replaces the cached recent list in one transaction.
func (s *Store) SaveRecents(ctx context.Context, entries []model.RecentEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save recents: begin: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `DELETE FROM recents`); err != nil {
		return fmt.Errorf("save recents: clear: %w", err)
	}

	for i, e := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO recents (conversation, position, name, avatar_url, unread_count)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(conversation) DO NOTHING
		`, e.Ref.Key(), i, e.Name, e.AvatarURL, max(e.UnreadCount, 0))
		if err != nil {
			return fmt.Errorf("save recents: insert %s: %w", e.Ref.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save recents: commit: %w", err)
	}
	return nil
}

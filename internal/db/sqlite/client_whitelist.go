package sqlite

import (
	"context"

	"github.com/pkg/errors"

	"github.com/Jasonzhang2023/group-assist-bot/internal/db"
)

func (c *sqliteClient) IsWhitelisted(ctx context.Context, chatID, userID int64) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var count int
	err := c.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM whitelist WHERE chat_id = ? AND user_id = ?", chatID, userID)
	return count > 0, errors.Wrap(err, "cant check whitelist")
}

func (c *sqliteClient) ListWhitelist(ctx context.Context, chatID int64) ([]*db.WhitelistEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var res []*db.WhitelistEntry
	err := c.db.SelectContext(ctx, &res, `
		SELECT chat_id, user_id, username, full_name, added_by, added_at, note
		FROM whitelist WHERE chat_id = ? ORDER BY added_at`, chatID)
	return res, errors.Wrap(err, "cant list whitelist")
}

func (c *sqliteClient) AddWhitelistEntry(ctx context.Context, entry *db.WhitelistEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	query := `
		INSERT INTO whitelist (chat_id, user_id, username, full_name, added_by, added_at, note)
		VALUES (:chat_id, :user_id, :username, :full_name, :added_by, :added_at, :note)
		ON CONFLICT(chat_id, user_id) DO UPDATE SET
		username=excluded.username,
		full_name=excluded.full_name,
		added_by=excluded.added_by,
		note=excluded.note;
	`
	_, err := c.db.NamedExecContext(ctx, query, entry)
	return errors.Wrap(err, "cant add whitelist entry")
}

func (c *sqliteClient) RemoveWhitelistEntry(ctx context.Context, chatID, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx,
		"DELETE FROM whitelist WHERE chat_id = ? AND user_id = ?", chatID, userID)
	return errors.Wrap(err, "cant remove whitelist entry")
}

package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/Jasonzhang2023/group-assist-bot/internal/db"
)

func (c *sqliteClient) GetPendingMember(ctx context.Context, chatID, userID int64) (*db.PendingMember, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	res := &db.PendingMember{}
	err := c.db.GetContext(ctx, res, `
		SELECT chat_id, user_id, username, full_name, joined_at, deadline, status
		FROM pending_members WHERE chat_id = ? AND user_id = ?`, chatID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "cant get pending member")
	}
	return res, nil
}

func (c *sqliteClient) GetPendingByUser(ctx context.Context, userID int64) ([]*db.PendingMember, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var res []*db.PendingMember
	err := c.db.SelectContext(ctx, &res, `
		SELECT chat_id, user_id, username, full_name, joined_at, deadline, status
		FROM pending_members WHERE user_id = ? AND status = ?`, userID, db.StatusPending)
	return res, errors.Wrap(err, "cant get pending by user")
}

func (c *sqliteClient) ListPendingMembers(ctx context.Context, chatID int64) ([]*db.PendingMember, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var res []*db.PendingMember
	err := c.db.SelectContext(ctx, &res, `
		SELECT chat_id, user_id, username, full_name, joined_at, deadline, status
		FROM pending_members WHERE chat_id = ? AND status = ? ORDER BY joined_at`, chatID, db.StatusPending)
	return res, errors.Wrap(err, "cant list pending members")
}

func (c *sqliteClient) UpsertPendingMember(ctx context.Context, member *db.PendingMember) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	query := `
		INSERT INTO pending_members (chat_id, user_id, username, full_name, joined_at, deadline, status)
		VALUES (:chat_id, :user_id, :username, :full_name, :joined_at, :deadline, :status)
		ON CONFLICT(chat_id, user_id) DO UPDATE SET
		username=excluded.username,
		full_name=excluded.full_name,
		joined_at=excluded.joined_at,
		deadline=excluded.deadline,
		status=excluded.status;
	`
	_, err := c.db.NamedExecContext(ctx, query, member)
	return errors.Wrap(err, "cant upsert pending member")
}

func (c *sqliteClient) SetPendingStatus(ctx context.Context, chatID, userID int64, status db.VerificationStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx,
		"UPDATE pending_members SET status = ? WHERE chat_id = ? AND user_id = ?",
		status, chatID, userID)
	return errors.Wrap(err, "cant set pending status")
}

func (c *sqliteClient) DeletePendingMember(ctx context.Context, chatID, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx,
		"DELETE FROM pending_members WHERE chat_id = ? AND user_id = ?", chatID, userID)
	return errors.Wrap(err, "cant delete pending member")
}

func (c *sqliteClient) PurgeResolvedPending(ctx context.Context, before time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx,
		"DELETE FROM pending_members WHERE status != ? AND deadline < ?",
		db.StatusPending, before)
	if err != nil {
		return 0, errors.Wrap(err, "cant purge resolved pending")
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "cant count purged rows")
}

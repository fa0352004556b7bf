package sqlite

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/Jasonzhang2023/group-assist-bot/internal/db"
)

func (c *sqliteClient) SaveMessage(ctx context.Context, message *db.ArchivedMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	query := `
		INSERT INTO messages (timestamp, chat_id, chat_title, chat_type, user_name, from_user_id,
			content_type, content, is_topic_message, topic_id, forward_from)
		VALUES (:timestamp, :chat_id, :chat_title, :chat_type, :user_name, :from_user_id,
			:content_type, :content, :is_topic_message, :topic_id, :forward_from);
	`
	_, err := c.db.NamedExecContext(ctx, query, message)
	return errors.Wrap(err, "cant save message")
}

func messageFilter(query db.MessageQuery) (string, []interface{}) {
	clauses := make([]string, 0, 5)
	args := make([]interface{}, 0, 5)
	if query.ChatID != 0 {
		clauses = append(clauses, "chat_id = ?")
		args = append(args, query.ChatID)
	}
	if query.UserID != 0 {
		clauses = append(clauses, "from_user_id = ?")
		args = append(args, query.UserID)
	}
	if !query.Since.IsZero() {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, query.Since)
	}
	if !query.Until.IsZero() {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, query.Until)
	}
	if query.Search != "" {
		clauses = append(clauses, "content LIKE ?")
		args = append(args, "%"+query.Search+"%")
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (c *sqliteClient) ListMessages(ctx context.Context, query db.MessageQuery) ([]*db.ArchivedMessage, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	where, args := messageFilter(query)
	limit := query.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit, query.Offset)

	var res []*db.ArchivedMessage
	err := c.db.SelectContext(ctx, &res, `
		SELECT id, timestamp, chat_id, chat_title, chat_type, user_name, from_user_id,
			content_type, content, is_topic_message, topic_id, forward_from
		FROM messages`+where+` ORDER BY timestamp DESC LIMIT ? OFFSET ?`, args...)
	return res, errors.Wrap(err, "cant list messages")
}

func (c *sqliteClient) CountMessages(ctx context.Context, query db.MessageQuery) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	where, args := messageFilter(query)
	var count int64
	err := c.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM messages"+where, args...)
	return count, errors.Wrap(err, "cant count messages")
}

func (c *sqliteClient) ListArchivedChats(ctx context.Context) ([]db.ChatRef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var res []db.ChatRef
	err := c.db.SelectContext(ctx, &res, `
		SELECT chat_id, MAX(chat_title) AS chat_title
		FROM messages GROUP BY chat_id ORDER BY MAX(timestamp) DESC`)
	return res, errors.Wrap(err, "cant list archived chats")
}

package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/Jasonzhang2023/group-assist-bot/internal/db"
)

func (c *sqliteClient) GetJoinSettings(ctx context.Context, chatID int64) (*db.JoinSettings, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	res := &db.JoinSettings{}
	err := c.db.GetContext(ctx, res, `
		SELECT chat_id, enabled, mode, question, answer, welcome_message, timeout_seconds
		FROM join_settings WHERE chat_id = ?`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return db.DefaultJoinSettings(chatID), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "cant get join settings")
	}
	return res, nil
}

func (c *sqliteClient) SetJoinSettings(ctx context.Context, settings *db.JoinSettings) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	query := `
		INSERT INTO join_settings (chat_id, enabled, mode, question, answer, welcome_message, timeout_seconds)
		VALUES (:chat_id, :enabled, :mode, :question, :answer, :welcome_message, :timeout_seconds)
		ON CONFLICT(chat_id) DO UPDATE SET
		enabled=excluded.enabled,
		mode=excluded.mode,
		question=excluded.question,
		answer=excluded.answer,
		welcome_message=excluded.welcome_message,
		timeout_seconds=excluded.timeout_seconds;
	`
	_, err := c.db.NamedExecContext(ctx, query, settings)
	return errors.Wrap(err, "cant set join settings")
}

func (c *sqliteClient) GetAutoMuteSettings(ctx context.Context, chatID int64) (*db.AutoMuteSettings, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	res := &db.AutoMuteSettings{}
	err := c.db.GetContext(ctx, res, `
		SELECT chat_id, enabled, start_time, end_time, days_of_week, mute_level
		FROM auto_mute_settings WHERE chat_id = ?`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "cant get auto mute settings")
	}
	return res, nil
}

func (c *sqliteClient) ListEnabledAutoMute(ctx context.Context) ([]*db.AutoMuteSettings, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var res []*db.AutoMuteSettings
	err := c.db.SelectContext(ctx, &res, `
		SELECT chat_id, enabled, start_time, end_time, days_of_week, mute_level
		FROM auto_mute_settings WHERE enabled = 1`)
	return res, errors.Wrap(err, "cant list enabled auto mute settings")
}

func (c *sqliteClient) SetAutoMuteSettings(ctx context.Context, settings *db.AutoMuteSettings) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	query := `
		INSERT INTO auto_mute_settings (chat_id, enabled, start_time, end_time, days_of_week, mute_level)
		VALUES (:chat_id, :enabled, :start_time, :end_time, :days_of_week, :mute_level)
		ON CONFLICT(chat_id) DO UPDATE SET
		enabled=excluded.enabled,
		start_time=excluded.start_time,
		end_time=excluded.end_time,
		days_of_week=excluded.days_of_week,
		mute_level=excluded.mute_level;
	`
	_, err := c.db.NamedExecContext(ctx, query, settings)
	return errors.Wrap(err, "cant set auto mute settings")
}

func (c *sqliteClient) DeleteAutoMuteSettings(ctx context.Context, chatID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx, "DELETE FROM auto_mute_settings WHERE chat_id = ?", chatID)
	return errors.Wrap(err, "cant delete auto mute settings")
}

func (c *sqliteClient) GetSpamFilterSettings(ctx context.Context, chatID int64) (*db.SpamFilterSettings, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	res := &db.SpamFilterSettings{}
	err := c.db.GetContext(ctx, res, `
		SELECT chat_id, enabled, rules
		FROM spam_filter_settings WHERE chat_id = ?`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return &db.SpamFilterSettings{ChatID: chatID}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "cant get spam filter settings")
	}
	return res, nil
}

func (c *sqliteClient) SetSpamFilterSettings(ctx context.Context, settings *db.SpamFilterSettings) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	query := `
		INSERT INTO spam_filter_settings (chat_id, enabled, rules)
		VALUES (:chat_id, :enabled, :rules)
		ON CONFLICT(chat_id) DO UPDATE SET
		enabled=excluded.enabled,
		rules=excluded.rules;
	`
	_, err := c.db.NamedExecContext(ctx, query, settings)
	return errors.Wrap(err, "cant set spam filter settings")
}

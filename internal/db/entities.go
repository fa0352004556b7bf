package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type VerificationStatus string

const (
	StatusPending  VerificationStatus = "pending"
	StatusApproved VerificationStatus = "approved"
	StatusRejected VerificationStatus = "rejected"
	StatusTimeout  VerificationStatus = "timeout"
)

type VerifyMode string

const (
	VerifyModeQuestion VerifyMode = "question"
	VerifyModeAdmin    VerifyMode = "admin"
)

type SpamRuleType string

const (
	RuleTypeKeyword SpamRuleType = "keyword"
	RuleTypeURL     SpamRuleType = "url"
	RuleTypeRegex   SpamRuleType = "regex"
)

type SpamAction string

const (
	ActionDelete SpamAction = "delete"
	ActionWarn   SpamAction = "warn"
	ActionMute   SpamAction = "mute"
)

type (
	// PendingMember is one (chat, user) pair awaiting join verification.
	PendingMember struct {
		ChatID   int64              `db:"chat_id" json:"chat_id"`
		UserID   int64              `db:"user_id" json:"user_id"`
		Username string             `db:"username" json:"username"`
		FullName string             `db:"full_name" json:"full_name"`
		JoinedAt time.Time          `db:"joined_at" json:"joined_at"`
		Deadline time.Time          `db:"deadline" json:"deadline"`
		Status   VerificationStatus `db:"status" json:"status"`
	}

	JoinSettings struct {
		ChatID         int64      `db:"chat_id" json:"chat_id"`
		Enabled        bool       `db:"enabled" json:"enabled"`
		Mode           VerifyMode `db:"mode" json:"mode"`
		Question       string     `db:"question" json:"question"`
		Answer         string     `db:"answer" json:"answer"`
		WelcomeMessage string     `db:"welcome_message" json:"welcome_message"`
		TimeoutSeconds int        `db:"timeout_seconds" json:"timeout_seconds"`
	}

	AutoMuteSettings struct {
		ChatID    int64    `db:"chat_id" json:"chat_id"`
		Enabled   bool     `db:"enabled" json:"enabled"`
		StartTime string   `db:"start_time" json:"start_time"` // "HH:MM"
		EndTime   string   `db:"end_time" json:"end_time"`   // "HH:MM"
		Days      Weekdays `db:"days_of_week" json:"days_of_week"`
		MuteLevel string   `db:"mute_level" json:"mute_level"`
	}

	SpamRule struct {
		Type    SpamRuleType `json:"type"`
		Content string       `json:"content"`
		Action  SpamAction   `json:"action"`
	}

	SpamRules []SpamRule

	SpamFilterSettings struct {
		ChatID  int64     `db:"chat_id" json:"chat_id"`
		Enabled bool      `db:"enabled" json:"enabled"`
		Rules   SpamRules `db:"rules" json:"rules"`
	}

	WhitelistEntry struct {
		ChatID   int64     `db:"chat_id" json:"chat_id"`
		UserID   int64     `db:"user_id" json:"user_id"`
		Username string    `db:"username" json:"username"`
		FullName string    `db:"full_name" json:"full_name"`
		AddedBy  int64     `db:"added_by" json:"added_by"`
		AddedAt  time.Time `db:"added_at" json:"added_at"`
		Note     string    `db:"note" json:"note"`
	}

	ArchivedMessage struct {
		ID          int64     `db:"id" json:"id"`
		Timestamp   time.Time `db:"timestamp" json:"timestamp"`
		ChatID      int64     `db:"chat_id" json:"chat_id"`
		ChatTitle   string    `db:"chat_title" json:"chat_title"`
		ChatType    string    `db:"chat_type" json:"chat_type"`
		UserName    string    `db:"user_name" json:"user_name"`
		FromUserID  int64     `db:"from_user_id" json:"from_user_id"`
		ContentType string    `db:"content_type" json:"content_type"`
		Content     string    `db:"content" json:"content"`
		IsTopic     bool      `db:"is_topic_message" json:"is_topic_message"`
		TopicID     int64     `db:"topic_id" json:"topic_id"`
		ForwardFrom string    `db:"forward_from" json:"forward_from"`
	}

	// Weekdays is a set of active days persisted as comma-separated
	// time.Weekday ints (0=Sunday).
	Weekdays []time.Weekday
)

func (w Weekdays) Value() (driver.Value, error) {
	parts := make([]string, 0, len(w))
	for _, day := range w {
		parts = append(parts, strconv.Itoa(int(day)))
	}
	return strings.Join(parts, ","), nil
}

func (w *Weekdays) Scan(v interface{}) error {
	var raw string
	switch data := v.(type) {
	case nil:
		*w = nil
		return nil
	case string:
		raw = data
	case []byte:
		raw = string(data)
	default:
		return fmt.Errorf("cannot scan type %T into Weekdays", v)
	}
	if raw == "" {
		*w = nil
		return nil
	}
	days := make(Weekdays, 0, 7)
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return fmt.Errorf("bad weekday %q: %w", part, err)
		}
		if n < 0 || n > 6 {
			return fmt.Errorf("weekday %d out of range", n)
		}
		days = append(days, time.Weekday(n))
	}
	*w = days
	return nil
}

func (w Weekdays) Contains(day time.Weekday) bool {
	for _, d := range w {
		if d == day {
			return true
		}
	}
	return false
}

func (w Weekdays) String() string {
	parts := make([]string, 0, len(w))
	for _, day := range w {
		parts = append(parts, day.String())
	}
	return strings.Join(parts, ", ")
}

func (r SpamRules) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *SpamRules) Scan(v interface{}) error {
	if v == nil {
		return nil
	}
	switch data := v.(type) {
	case string:
		return json.Unmarshal([]byte(data), r)
	case []byte:
		return json.Unmarshal(data, r)
	default:
		return fmt.Errorf("cannot scan type %T into SpamRules", v)
	}
}

func DefaultJoinSettings(chatID int64) *JoinSettings {
	return &JoinSettings{
		ChatID:         chatID,
		Enabled:        false,
		Mode:           VerifyModeQuestion,
		TimeoutSeconds: 300,
	}
}

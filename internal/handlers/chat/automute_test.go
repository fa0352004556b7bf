package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jasonzhang2023/group-assist-bot/internal/db"
	"github.com/Jasonzhang2023/group-assist-bot/internal/policy/permissions"
)

type fakeAutoMuteStore struct {
	schedules []*db.AutoMuteSettings
}

func (f *fakeAutoMuteStore) ListEnabledAutoMute(ctx context.Context) ([]*db.AutoMuteSettings, error) {
	return f.schedules, nil
}

type fakeChatMuter struct {
	muted   []int64
	unmuted []int64
	levels  []permissions.Level
}

func (f *fakeChatMuter) MuteChat(ctx context.Context, chatID int64, level permissions.Level, duration time.Duration) (bool, error) {
	f.muted = append(f.muted, chatID)
	f.levels = append(f.levels, level)
	return true, nil
}

func (f *fakeChatMuter) UnmuteChat(ctx context.Context, chatID int64) (bool, error) {
	f.unmuted = append(f.unmuted, chatID)
	return true, nil
}

// at builds a Monday-based instant. 2026-06-01 is a Monday.
func at(day time.Weekday, hour, minute, second int) time.Time {
	base := time.Date(2026, 6, 1, hour, minute, second, 0, time.UTC)
	return base.AddDate(0, 0, (int(day)-int(time.Monday)+7)%7)
}

func nightSchedule(days ...time.Weekday) *db.AutoMuteSettings {
	return &db.AutoMuteSettings{
		ChatID:    1,
		Enabled:   true,
		StartTime: "22:00",
		EndTime:   "06:00",
		Days:      db.Weekdays(days),
		MuteLevel: "strict",
	}
}

func TestInWindowWrapsMidnight(t *testing.T) {
	t.Parallel()

	schedule := nightSchedule(time.Monday)

	assert.True(t, InWindow(schedule, at(time.Monday, 23, 59, 0)))
	assert.True(t, InWindow(schedule, at(time.Monday, 22, 0, 0)))
	assert.False(t, InWindow(schedule, at(time.Monday, 12, 0, 0)))
	assert.False(t, InWindow(schedule, at(time.Monday, 6, 0, 0)))
	// The morning tail belongs to Monday's window, which spills into Tuesday.
	assert.True(t, InWindow(schedule, at(time.Tuesday, 5, 59, 0)))
	assert.False(t, InWindow(schedule, at(time.Wednesday, 5, 59, 0)))
}

func TestInWindowSameDay(t *testing.T) {
	t.Parallel()

	schedule := &db.AutoMuteSettings{
		ChatID:    1,
		Enabled:   true,
		StartTime: "13:00",
		EndTime:   "15:00",
		Days:      db.Weekdays{time.Friday},
	}

	assert.True(t, InWindow(schedule, at(time.Friday, 14, 0, 0)))
	assert.False(t, InWindow(schedule, at(time.Friday, 15, 0, 0)))
	assert.False(t, InWindow(schedule, at(time.Thursday, 14, 0, 0)))
}

func TestSweepFiresOnStartEdge(t *testing.T) {
	t.Parallel()

	muter := &fakeChatMuter{}
	scheduler := NewAutoMuteScheduler(
		&fakeAutoMuteStore{schedules: []*db.AutoMuteSettings{nightSchedule(time.Monday)}},
		muter, nil, time.UTC)

	scheduler.Sweep(context.Background(), at(time.Monday, 22, 0, 3))
	require.Len(t, muter.muted, 1)
	assert.Equal(t, int64(1), muter.muted[0])
	assert.Equal(t, permissions.LevelStrict, muter.levels[0])
	assert.Empty(t, muter.unmuted)
}

func TestSweepFiresOnEndEdgeNextDay(t *testing.T) {
	t.Parallel()

	muter := &fakeChatMuter{}
	scheduler := NewAutoMuteScheduler(
		&fakeAutoMuteStore{schedules: []*db.AutoMuteSettings{nightSchedule(time.Monday)}},
		muter, nil, time.UTC)

	// The 06:00 end of Monday's window lands on Tuesday morning.
	scheduler.Sweep(context.Background(), at(time.Tuesday, 6, 0, 10))
	assert.Empty(t, muter.muted)
	require.Len(t, muter.unmuted, 1)
	assert.Equal(t, int64(1), muter.unmuted[0])
}

func TestSweepIgnoresOffEdgeMinutes(t *testing.T) {
	t.Parallel()

	muter := &fakeChatMuter{}
	scheduler := NewAutoMuteScheduler(
		&fakeAutoMuteStore{schedules: []*db.AutoMuteSettings{nightSchedule(time.Monday)}},
		muter, nil, time.UTC)

	scheduler.Sweep(context.Background(), at(time.Monday, 22, 1, 0))
	scheduler.Sweep(context.Background(), at(time.Monday, 22, 0, 45))
	scheduler.Sweep(context.Background(), at(time.Sunday, 22, 0, 0))
	assert.Empty(t, muter.muted)
	assert.Empty(t, muter.unmuted)
}

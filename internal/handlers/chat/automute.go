package chat

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Jasonzhang2023/group-assist-bot/internal/db"
	"github.com/Jasonzhang2023/group-assist-bot/internal/i18n"
	"github.com/Jasonzhang2023/group-assist-bot/internal/infra"
	"github.com/Jasonzhang2023/group-assist-bot/internal/observability"
	"github.com/Jasonzhang2023/group-assist-bot/internal/policy/permissions"
)

type automuteStore interface {
	ListEnabledAutoMute(ctx context.Context) ([]*db.AutoMuteSettings, error)
}

type chatMuter interface {
	MuteChat(ctx context.Context, chatID int64, level permissions.Level, duration time.Duration) (bool, error)
	UnmuteChat(ctx context.Context, chatID int64) (bool, error)
}

// AutoMuteScheduler sweeps enabled schedules once a minute, aligned to the
// minute boundary, and fires mute or unmute transitions on the schedule
// edges. Permission idempotence in the mute service keeps a re-fired edge
// from hitting the API again.
type AutoMuteScheduler struct {
	store  automuteStore
	mutes  chatMuter
	notify func(ctx context.Context, chatID int64, text string)
	loc    *time.Location
	clock  func() time.Time
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewAutoMuteScheduler(store automuteStore, mutes chatMuter, notify func(ctx context.Context, chatID int64, text string), loc *time.Location) *AutoMuteScheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &AutoMuteScheduler{
		store:  store,
		mutes:  mutes,
		notify: notify,
		loc:    loc,
		clock:  time.Now,
	}
}

func (s *AutoMuteScheduler) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		infra.GoRecoverable(-1, "automute_scheduler", func() {
			s.run(runCtx)
		})
	}()
	log.WithField("tz", s.loc.String()).Info("auto mute scheduler started")
	return nil
}

func (s *AutoMuteScheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return nil
}

func (s *AutoMuteScheduler) run(ctx context.Context) {
	for {
		now := s.clock().In(s.loc)
		next := now.Truncate(time.Minute).Add(time.Minute)
		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(now)):
		}
		s.Sweep(ctx, s.clock().In(s.loc))
	}
}

// Sweep fires the transitions whose edge matches the given instant.
func (s *AutoMuteScheduler) Sweep(ctx context.Context, now time.Time) {
	schedules, err := s.store.ListEnabledAutoMute(ctx)
	if err != nil {
		log.WithError(err).Error("cant list auto mute schedules")
		return
	}

	for _, schedule := range schedules {
		entry := log.WithField("context", "automute").WithField("chat", schedule.ChatID)

		if onStartEdge(schedule, now) {
			level, err := permissions.ParseLevel(schedule.MuteLevel)
			if err != nil {
				entry.WithError(err).Error("bad mute level, using strict")
				level = permissions.LevelStrict
			}
			// The end edge reverses this, no duration-based reversal here.
			changed, err := s.mutes.MuteChat(ctx, schedule.ChatID, level, 0)
			if err != nil {
				entry.WithError(err).Error("cant mute chat on schedule")
				continue
			}
			if changed {
				entry.WithField("level", level).Info("scheduled mute applied")
				observability.RecordAutoMuteTransition("on")
				if s.notify != nil {
					s.notify(ctx, schedule.ChatID, i18n.F("mute.chat_start", schedule.StartTime, schedule.EndTime, schedule.Days.String()))
				}
			}
			continue
		}

		if onEndEdge(schedule, now) {
			changed, err := s.mutes.UnmuteChat(ctx, schedule.ChatID)
			if err != nil {
				entry.WithError(err).Error("cant unmute chat on schedule")
				continue
			}
			if changed {
				entry.Info("scheduled unmute applied")
				observability.RecordAutoMuteTransition("off")
				if s.notify != nil {
					s.notify(ctx, schedule.ChatID, i18n.Get("mute.chat_end"))
				}
			}
		}
	}
}

func parseClock(value string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "bad clock value %q", value)
	}
	return t.Hour(), t.Minute(), nil
}

// matchesMinute reports whether now falls on the given wall-clock edge. The
// half-minute tolerance absorbs ticker jitter without double firing.
func matchesMinute(now time.Time, hour, minute int) bool {
	return now.Hour() == hour && now.Minute() == minute && now.Second() < 30
}

func onStartEdge(schedule *db.AutoMuteSettings, now time.Time) bool {
	hour, minute, err := parseClock(schedule.StartTime)
	if err != nil {
		log.WithError(err).WithField("chat", schedule.ChatID).Error("bad schedule start time")
		return false
	}
	return matchesMinute(now, hour, minute) && schedule.Days.Contains(now.Weekday())
}

// onEndEdge matches the end of the window. For a window that wraps past
// midnight the end falls on the day after the scheduled one, so day
// membership is checked against the previous day.
func onEndEdge(schedule *db.AutoMuteSettings, now time.Time) bool {
	hour, minute, err := parseClock(schedule.EndTime)
	if err != nil {
		log.WithError(err).WithField("chat", schedule.ChatID).Error("bad schedule end time")
		return false
	}
	if !matchesMinute(now, hour, minute) {
		return false
	}
	day := now.Weekday()
	if wrapsMidnight(schedule) {
		day = (day + 6) % 7
	}
	return schedule.Days.Contains(day)
}

func wrapsMidnight(schedule *db.AutoMuteSettings) bool {
	startH, startM, err1 := parseClock(schedule.StartTime)
	endH, endM, err2 := parseClock(schedule.EndTime)
	if err1 != nil || err2 != nil {
		return false
	}
	return startH*60+startM >= endH*60+endM
}

// InWindow reports whether the instant falls inside the schedule's quiet
// window, honoring windows that wrap past midnight.
func InWindow(schedule *db.AutoMuteSettings, now time.Time) bool {
	startH, startM, err := parseClock(schedule.StartTime)
	if err != nil {
		return false
	}
	endH, endM, err := parseClock(schedule.EndTime)
	if err != nil {
		return false
	}

	current := now.Hour()*60 + now.Minute()
	start := startH*60 + startM
	end := endH*60 + endM

	if start < end {
		return current >= start && current < end && schedule.Days.Contains(now.Weekday())
	}
	// Wrapped window: the evening part belongs to the scheduled day, the
	// morning part to the day after.
	if current >= start {
		return schedule.Days.Contains(now.Weekday())
	}
	if current < end {
		return schedule.Days.Contains((now.Weekday() + 6) % 7)
	}
	return false
}

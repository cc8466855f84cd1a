// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// SchedulerOptions configures the background quest jobs.
type SchedulerOptions struct {
	// DailyAt is the UTC time of day ("HH:MM") daily quests are generated.
	DailyAt string
	// ActiveWithin limits daily generation to recently active users.
	ActiveWithin time.Duration
	// Locker, when set, makes each job run on a single replica.
	Locker gocron.Locker
}

// StartQuestScheduler starts the expiry sweep (every minute) and the daily generation job.
// The caller owns the returned scheduler and must Shutdown it.
func (s *QuestService) StartQuestScheduler(opts SchedulerOptions) (gocron.Scheduler, error) {
	hour, minute, err := parseClock(opts.DailyAt)
	if err != nil {
		return nil, err
	}
	if opts.ActiveWithin <= 0 {
		opts.ActiveWithin = 7 * 24 * time.Hour
	}

	schedOpts := []gocron.SchedulerOption{gocron.WithLocation(time.UTC)}
	if opts.Locker != nil {
		schedOpts = append(schedOpts, gocron.WithDistributedLocker(opts.Locker))
	}
	sched, err := gocron.NewScheduler(schedOpts...)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	// Every minute: expire overdue quests
	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if _, err := s.ExpireOverdue(ctx); err != nil {
				s.Logger.Error("[Scheduler] quest expiry failed", zap.Error(err))
			}
		}),
		gocron.WithName("expire-quests"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule expire-quests: %w", err)
	}

	// Once a day: top up daily quests for recently active climbers
	_, err = sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(hour, minute, 0))),
		gocron.NewTask(func() {
			s.generateForActiveUsers(context.Background(), opts.ActiveWithin)
		}),
		gocron.WithName("generate-daily-quests"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule generate-daily-quests: %w", err)
	}

	sched.Start()
	s.Logger.Info("Quest scheduler started", zap.String("daily_at", fmt.Sprintf("%02d:%02d UTC", hour, minute)))
	return sched, nil
}

func (s *QuestService) generateForActiveUsers(ctx context.Context, within time.Duration) {
	ids, err := s.Store.ListActiveUserIDs(ctx, s.now().Add(-within))
	if err != nil {
		s.Logger.Error("[Scheduler] failed to list active users", zap.Error(err))
		return
	}
	generated := 0
	for _, id := range ids {
		if _, err := s.GenerateDailyQuests(ctx, id); err != nil {
			s.Logger.Warn("[Scheduler] daily generation failed", zap.String("user_id", id), zap.Error(err))
			continue
		}
		generated++
	}
	s.Logger.Info("[Scheduler] daily quests refreshed", zap.Int("users", generated), zap.Int("candidates", len(ids)))
}

func parseClock(v string) (uint, uint, error) {
	if v == "" {
		return 0, 0, nil
	}
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q: %w", v, err)
	}
	return uint(t.Hour()), uint(t.Minute()), nil
}

package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"climb-progression-system/gamification"
	"climb-progression-system/messaging"
	"climb-progression-system/repository"
	"climb-progression-system/services"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testClock is a settable clock shared by the store and every service.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{now: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fixedRandom always draws the same value and picks index pick (clamped).
type fixedRandom struct {
	draw float64
	pick int
}

func (r fixedRandom) Float64() float64 { return r.draw }
func (r fixedRandom) Intn(n int) int {
	if r.pick >= n {
		return n - 1
	}
	return r.pick
}

// recordingPublisher keeps every event it is handed.
type recordingPublisher struct {
	mu     sync.Mutex
	events []messaging.ProgressionEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event messaging.ProgressionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	clock        *testClock
	store        *repository.MemoryStore
	events       *recordingPublisher
	progression  *services.ProgressionService
	achievements *services.AchievementService
	relics       *services.RelicService
	quests       *services.QuestService
	sessions     *services.SessionService
	engine       *services.Engine
}

// noDrop never yields a relic.
var noDrop = fixedRandom{draw: 0.99}

func newHarness(t *testing.T, rng gamification.Random, advice services.AdviceGenerator) *harness {
	t.Helper()
	clock := newTestClock(time.Date(2024, 5, 14, 10, 0, 0, 0, time.UTC))
	store := repository.NewMemoryStore().WithClock(clock.Now)
	events := &recordingPublisher{}
	logger := zap.NewNop()

	h := &harness{clock: clock, store: store, events: events}
	h.progression = services.NewProgressionService(store, events, logger).WithClock(clock.Now)
	h.achievements = services.NewAchievementService(store, gamification.NewAchievementCatalog(), events, logger).WithClock(clock.Now)
	h.relics = services.NewRelicService(store, gamification.NewRelicCatalog(), rng, events, logger).WithClock(clock.Now)
	h.quests = services.NewQuestService(store, gamification.NewQuestCatalog(), advice, h.achievements, events, rng, logger).WithClock(clock.Now)
	h.sessions = services.NewSessionService(store, h.achievements, events, logger).WithClock(clock.Now)
	h.engine = services.NewEngine(store, h.achievements, h.relics, events, logger).WithClock(clock.Now)
	return h
}

func (h *harness) startSession(t *testing.T, userID string) string {
	t.Helper()
	sess, err := h.sessions.StartSession(context.Background(), userID, "Boulder Barn", "")
	require.NoError(t, err)
	return sess.ID
}

func (h *harness) send(t *testing.T, userID, sessionID, grade string, attempts int) *services.ProblemOutcome {
	t.Helper()
	out, err := h.engine.RecordCompletedProblem(context.Background(), userID, services.ProblemInput{
		SessionID: sessionID,
		Grade:     grade,
		Completed: true,
		Attempts:  attempts,
		HoldType:  "crimp",
		WallAngle: "vertical",
	})
	require.NoError(t, err)
	return out
}

// grantXP bumps total XP directly, bypassing problems.
func (h *harness) grantXP(t *testing.T, userID string, xp int64) {
	t.Helper()
	_, err := h.progression.AwardXP(context.Background(), userID, xp, "test")
	require.NoError(t, err)
}

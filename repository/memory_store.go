package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"climb-progression-system/models"

	"github.com/google/uuid"
)

// MemoryStore keeps everything in process. It backs tests and STORE_DRIVER=memory.
// Per-user serialization comes from a mutex per user; data access is guarded by mu.
type MemoryStore struct {
	mu        sync.RWMutex
	userLocks sync.Map // external user id → *sync.Mutex

	users        map[string]*models.UserProgress
	skills       map[string]*models.Skill
	sessions     map[string]*models.ClimbingSession
	problems     []*models.BoulderProblem
	quests       map[string]*models.Quest
	achievements []*models.UserAchievement
	relics       []*models.UserRelic

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*models.UserProgress),
		skills:   make(map[string]*models.Skill),
		sessions: make(map[string]*models.ClimbingSession),
		quests:   make(map[string]*models.Quest),
		now:      time.Now,
	}
}

// WithClock replaces the clock used for created/updated timestamps.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) userLock(externalUserID string) *sync.Mutex {
	l, _ := s.userLocks.LoadOrStore(externalUserID, &sync.Mutex{})
	return l.(*sync.Mutex)
}

// WithUserLock does not roll back on error, writes made by fn before failing are kept.
func (s *MemoryStore) WithUserLock(ctx context.Context, externalUserID string, fn func(tx Store) error) error {
	if _, err := s.EnsureUser(ctx, externalUserID); err != nil {
		return err
	}
	l := s.userLock(externalUserID)
	l.Lock()
	defer l.Unlock()
	return fn(lockedMemoryStore{MemoryStore: s, externalUserID: externalUserID})
}

// lockedMemoryStore is handed to WithUserLock callbacks so nested locking of the same
// user does not deadlock.
type lockedMemoryStore struct {
	*MemoryStore
	externalUserID string
}

func (l lockedMemoryStore) WithUserLock(ctx context.Context, externalUserID string, fn func(tx Store) error) error {
	if externalUserID == l.externalUserID {
		return fn(l)
	}
	return l.MemoryStore.WithUserLock(ctx, externalUserID, fn)
}

func (s *MemoryStore) GetUser(_ context.Context, externalUserID string) (*models.UserProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[externalUserID]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) EnsureUser(ctx context.Context, externalUserID string) (*models.UserProgress, error) {
	s.mu.Lock()
	if _, ok := s.users[externalUserID]; !ok {
		now := s.now()
		s.users[externalUserID] = &models.UserProgress{
			ID:                   uuid.NewString(),
			ExternalUserID:       externalUserID,
			PreferredGradeSystem: "vscale",
			CurrentLayer:         1,
			Timestamps:           models.Timestamps{CreatedAt: now, UpdatedAt: now},
		}
	}
	s.mu.Unlock()
	return s.GetUser(ctx, externalUserID)
}

func (s *MemoryStore) SaveUser(_ context.Context, user *models.UserProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	maxOrdinal := -1
	for _, sk := range s.skills {
		if sk.ExternalUserID == user.ExternalUserID && sk.MaxGrade != "" && sk.MaxGradeOrdinal > maxOrdinal {
			maxOrdinal = sk.MaxGradeOrdinal
		}
	}
	var layerQuests []models.Quest
	for _, q := range s.quests {
		if q.ExternalUserID == user.ExternalUserID && q.QuestType == models.QuestTypeLayer {
			layerQuests = append(layerQuests, *q)
		}
	}

	now := s.now()
	applyDerived(user, maxOrdinal, completedLayerSet(layerQuests), now)
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	cp := *user
	s.users[user.ExternalUserID] = &cp
	return nil
}

func (s *MemoryStore) ListActiveUserIDs(_ context.Context, since time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, u := range s.users {
		if u.LastActiveAt != nil && !u.LastActiveAt.Before(since) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func skillKey(externalUserID string, t SkillTouch) string {
	return fmt.Sprintf("%s|%s|%s|%s", externalUserID, t.MainCategory, t.SubCategory, t.SkillType)
}

func (s *MemoryStore) GetUserSkills(_ context.Context, externalUserID string) ([]models.Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Skill
	for _, sk := range s.skills {
		if sk.ExternalUserID == externalUserID {
			out = append(out, *sk)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MainCategory != out[j].MainCategory {
			return out[i].MainCategory < out[j].MainCategory
		}
		return out[i].SubCategory < out[j].SubCategory
	})
	return out, nil
}

func (s *MemoryStore) UpsertSkill(_ context.Context, externalUserID string, touch SkillTouch) (*models.Skill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := skillKey(externalUserID, touch)
	sk, ok := s.skills[key]
	if !ok {
		sk = &models.Skill{
			ID:              uuid.NewString(),
			ExternalUserID:  externalUserID,
			MainCategory:    touch.MainCategory,
			SubCategory:     touch.SubCategory,
			SkillType:       touch.SkillType,
			MaxGradeOrdinal: -1,
			Timestamps:      models.Timestamps{CreatedAt: s.now()},
		}
		s.skills[key] = sk
	}
	ratchetSkill(sk, touch)
	sk.UpdatedAt = s.now()
	cp := *sk
	return &cp, nil
}

func (s *MemoryStore) CreateSession(_ context.Context, session *models.ClimbingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if _, exists := s.sessions[session.ID]; exists {
		return models.ErrAlreadyExists
	}
	now := s.now()
	session.CreatedAt, session.UpdatedAt = now, now
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, externalUserID, sessionID string) (*models.ClimbingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.ExternalUserID != externalUserID {
		return nil, models.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) SaveSession(_ context.Context, session *models.ClimbingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.UpdatedAt = s.now()
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemoryStore) CreateProblem(_ context.Context, problem *models.BoulderProblem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if problem.ID == "" {
		problem.ID = uuid.NewString()
	}
	now := s.now()
	problem.CreatedAt, problem.UpdatedAt = now, now
	cp := *problem
	s.problems = append(s.problems, &cp)
	return nil
}

func (s *MemoryStore) ListSessionProblems(_ context.Context, sessionID string) ([]models.BoulderProblem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.BoulderProblem
	for _, p := range s.problems {
		if p.SessionID == sessionID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListUserProblems(_ context.Context, externalUserID string) ([]models.BoulderProblem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.BoulderProblem
	for _, p := range s.problems {
		if p.ExternalUserID == externalUserID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func matchesFilter(q *models.Quest, f QuestFilter) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, st := range f.Statuses {
			ok = ok || q.Status == st
		}
		if !ok {
			return false
		}
	}
	if len(f.Types) > 0 {
		ok := false
		for _, t := range f.Types {
			ok = ok || q.QuestType == t
		}
		if !ok {
			return false
		}
	}
	if !f.CreatedSince.IsZero() && q.CreatedAt.Before(f.CreatedSince) {
		return false
	}
	if !f.CompletedFrom.IsZero() && (q.CompletedAt == nil || q.CompletedAt.Before(f.CompletedFrom)) {
		return false
	}
	return true
}

func (s *MemoryStore) GetUserQuests(_ context.Context, externalUserID string, filter QuestFilter) ([]models.Quest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Quest
	for _, q := range s.quests {
		if q.ExternalUserID == externalUserID && matchesFilter(q, filter) {
			out = append(out, *q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) GetQuest(_ context.Context, externalUserID, questID string) (*models.Quest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quests[questID]
	if !ok || q.ExternalUserID != externalUserID {
		return nil, models.ErrQuestNotFound
	}
	cp := *q
	return &cp, nil
}

func (s *MemoryStore) CreateQuest(_ context.Context, quest *models.Quest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if quest.QuestType == models.QuestTypeLayer {
		for _, q := range s.quests {
			if q.ExternalUserID == quest.ExternalUserID && q.QuestType == models.QuestTypeLayer && q.Layer == quest.Layer {
				return fmt.Errorf("%w: layer quest %d", models.ErrAlreadyExists, quest.Layer)
			}
		}
	}
	if quest.ID == "" {
		quest.ID = uuid.NewString()
	}
	if quest.CreatedAt.IsZero() {
		quest.CreatedAt = s.now()
	}
	quest.UpdatedAt = quest.CreatedAt
	cp := *quest
	s.quests[quest.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateQuest(_ context.Context, quest *models.Quest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quests[quest.ID]; !ok {
		return models.ErrQuestNotFound
	}
	quest.UpdatedAt = s.now()
	cp := *quest
	s.quests[quest.ID] = &cp
	return nil
}

func (s *MemoryStore) CountCompletedQuestsSince(_ context.Context, externalUserID string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, q := range s.quests {
		if q.ExternalUserID == externalUserID && q.Status == models.QuestStatusCompleted &&
			q.CompletedAt != nil && !q.CompletedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ExpireQuests(_ context.Context, externalUserID string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, q := range s.quests {
		if externalUserID != "" && q.ExternalUserID != externalUserID {
			continue
		}
		if q.IsOverdue(now) {
			q.Status = models.QuestStatusExpired
			q.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) GetLayerQuest(_ context.Context, externalUserID string, layer int) (*models.Quest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, q := range s.quests {
		if q.ExternalUserID == externalUserID && q.QuestType == models.QuestTypeLayer && q.Layer == layer {
			cp := *q
			return &cp, nil
		}
	}
	return nil, models.ErrQuestNotFound
}

func (s *MemoryStore) CreateLayerQuest(ctx context.Context, quest *models.Quest) error {
	quest.QuestType = models.QuestTypeLayer
	quest.ExpiresAt = nil
	return s.CreateQuest(ctx, quest)
}

func (s *MemoryStore) UpdateLayerQuest(ctx context.Context, quest *models.Quest) error {
	if quest.QuestType != models.QuestTypeLayer {
		return fmt.Errorf("%w: quest %s is not a layer quest", models.ErrInvalidInput, quest.ID)
	}
	return s.UpdateQuest(ctx, quest)
}

func (s *MemoryStore) CreateAchievement(_ context.Context, achievement *models.UserAchievement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.achievements {
		if a.ExternalUserID == achievement.ExternalUserID && a.AchievementID == achievement.AchievementID {
			return fmt.Errorf("%w: achievement %s", models.ErrAlreadyExists, achievement.AchievementID)
		}
	}
	if achievement.ID == "" {
		achievement.ID = uuid.NewString()
	}
	if achievement.UnlockedAt.IsZero() {
		achievement.UnlockedAt = s.now()
	}
	cp := *achievement
	s.achievements = append(s.achievements, &cp)
	return nil
}

func (s *MemoryStore) GetUserAchievements(_ context.Context, externalUserID string) ([]models.UserAchievement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.UserAchievement
	for _, a := range s.achievements {
		if a.ExternalUserID == externalUserID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateRelic(_ context.Context, relic *models.UserRelic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if relic.ID == "" {
		relic.ID = uuid.NewString()
	}
	if relic.FoundAt.IsZero() {
		relic.FoundAt = s.now()
	}
	cp := *relic
	s.relics = append(s.relics, &cp)
	return nil
}

func (s *MemoryStore) GetUserRelics(_ context.Context, externalUserID string) ([]models.UserRelic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.UserRelic
	for _, r := range s.relics {
		if r.ExternalUserID == externalUserID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetAggregateStats(_ context.Context, externalUserID string) (*models.AggregateStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &models.AggregateStats{HighestGradeOrdinal: -1}
	for _, sess := range s.sessions {
		if sess.ExternalUserID != externalUserID {
			continue
		}
		stats.TotalSessions++
		if sess.Status == models.SessionStatusCompleted {
			stats.CompletedSessions++
			stats.TotalClimbSeconds += sess.DurationSeconds
		}
	}
	for _, p := range s.problems {
		if p.ExternalUserID != externalUserID {
			continue
		}
		stats.TotalProblems++
		if !p.Completed {
			continue
		}
		stats.CompletedProblems++
		if p.Flashed() {
			stats.FlashedProblems++
		}
		if p.GradeOrdinal > stats.HighestGradeOrdinal {
			stats.HighestGradeOrdinal = p.GradeOrdinal
		}
	}
	for _, q := range s.quests {
		if q.ExternalUserID == externalUserID && q.Status == models.QuestStatusCompleted {
			stats.CompletedQuests++
		}
	}
	for _, r := range s.relics {
		if r.ExternalUserID == externalUserID {
			stats.RelicsFound++
		}
	}
	for _, a := range s.achievements {
		if a.ExternalUserID == externalUserID {
			stats.AchievementsUnlocked++
		}
	}
	return stats, nil
}

// UpsertProfiles takes each user's lock so a profile write cannot land between the read
// and save of a locked progression update.
func (s *MemoryStore) UpsertProfiles(_ context.Context, profiles []ProfileUpdate) (int, error) {
	written := 0
	for _, p := range profiles {
		if p.ExternalUserID == "" {
			continue
		}
		l := s.userLock(p.ExternalUserID)
		l.Lock()
		s.upsertProfile(p)
		l.Unlock()
		written++
	}
	return written, nil
}

func (s *MemoryStore) upsertProfile(p ProfileUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	u, ok := s.users[p.ExternalUserID]
	if !ok {
		u = &models.UserProgress{
			ID:                   uuid.NewString(),
			ExternalUserID:       p.ExternalUserID,
			PreferredGradeSystem: "vscale",
			CurrentLayer:         1,
			Timestamps:           models.Timestamps{CreatedAt: now},
		}
		s.users[p.ExternalUserID] = u
	}
	updatedAt := p.UpdatedAt
	u.DisplayName = p.DisplayName
	u.ProfileUpdatedAt = &updatedAt
	u.UpdatedAt = now
}

func (s *MemoryStore) LastProfileSync(_ context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last time.Time
	for _, u := range s.users {
		if u.ProfileUpdatedAt != nil && u.ProfileUpdatedAt.After(last) {
			last = *u.ProfileUpdatedAt
		}
	}
	return last, nil
}

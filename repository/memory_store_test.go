package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"climb-progression-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SkillRatchet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	touch := SkillTouch{MainCategory: "hold", SubCategory: "crimp", SkillType: "grip", Grade: "V5", GradeOrdinal: 5, XP: 30}
	sk, err := s.UpsertSkill(ctx, "u1", touch)
	require.NoError(t, err)
	assert.Equal(t, "V5", sk.MaxGrade)

	touch.Grade, touch.GradeOrdinal, touch.XP = "V2", 2, 30
	sk, err = s.UpsertSkill(ctx, "u1", touch)
	require.NoError(t, err)
	assert.Equal(t, "V5", sk.MaxGrade, "max grade never moves down")
	assert.Equal(t, int64(2), sk.TotalProblems)
	assert.Equal(t, int64(60), sk.XP)
	assert.Equal(t, 2, sk.Level)
}

func TestMemoryStore_SaveUserRecomputesDerivedFields(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	user, err := s.EnsureUser(ctx, "u1")
	require.NoError(t, err)

	_, err = s.UpsertSkill(ctx, "u1", SkillTouch{MainCategory: "wall", SubCategory: "roof", SkillType: "angle", Grade: "V7", GradeOrdinal: 7})
	require.NoError(t, err)

	user.TotalXP = 3000
	user.CurrentLayer = 6 // ignored
	user.WhistleLevel = 0 // ignored
	require.NoError(t, s.SaveUser(ctx, user))

	stored, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CurrentLayer, "layer 1 quest not completed")
	assert.Equal(t, 4, stored.WhistleLevel)

	now := time.Now()
	require.NoError(t, s.CreateLayerQuest(ctx, &models.Quest{ExternalUserID: "u1", Layer: 1, Status: models.QuestStatusCompleted, CompletedAt: &now, Title: "Edge of the Abyss"}))
	require.NoError(t, s.SaveUser(ctx, stored))
	stored, _ = s.GetUser(ctx, "u1")
	assert.Equal(t, 2, stored.CurrentLayer)
	assert.NotNil(t, stored.LastLayerUpAt)
}

func TestMemoryStore_LayerQuestUnique(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateLayerQuest(ctx, &models.Quest{ExternalUserID: "u1", Layer: 2, Title: "a"}))
	err := s.CreateLayerQuest(ctx, &models.Quest{ExternalUserID: "u1", Layer: 2, Title: "b"})
	assert.ErrorIs(t, err, models.ErrAlreadyExists)
	require.NoError(t, s.CreateLayerQuest(ctx, &models.Quest{ExternalUserID: "u2", Layer: 2, Title: "c"}))
}

func TestMemoryStore_ExpireQuests(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	require.NoError(t, s.CreateQuest(ctx, &models.Quest{ExternalUserID: "u1", QuestType: models.QuestTypeDaily, Status: models.QuestStatusActive, ExpiresAt: &past}))
	require.NoError(t, s.CreateQuest(ctx, &models.Quest{ExternalUserID: "u1", QuestType: models.QuestTypeDaily, Status: models.QuestStatusActive, ExpiresAt: &future}))
	require.NoError(t, s.CreateQuest(ctx, &models.Quest{ExternalUserID: "u2", QuestType: models.QuestTypeDaily, Status: models.QuestStatusActive, ExpiresAt: &past}))

	n, err := s.ExpireQuests(ctx, "u1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.ExpireQuests(ctx, "", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only u2's quest is left to sweep")

	n, _ = s.ExpireQuests(ctx, "", time.Now())
	assert.Zero(t, n)
}

func TestMemoryStore_OwnershipMismatchIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	q := &models.Quest{ExternalUserID: "owner", QuestType: models.QuestTypeDaily, Status: models.QuestStatusActive}
	require.NoError(t, s.CreateQuest(ctx, q))

	_, err := s.GetQuest(ctx, "intruder", q.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryStore_WithUserLockSerializes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithUserLock(ctx, "u1", func(tx Store) error {
				u, err := tx.GetUser(ctx, "u1")
				if err != nil {
					return err
				}
				u.TotalXP += 10
				return tx.SaveUser(ctx, u)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), u.TotalXP)
}

func TestMemoryStore_NestedLockSameUser(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	called := false
	err := s.WithUserLock(ctx, "u1", func(tx Store) error {
		return tx.WithUserLock(ctx, "u1", func(Store) error {
			called = true
			return nil
		})
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestMemoryStore_UpsertProfiles(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	last, err := s.LastProfileSync(ctx)
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	_, err = s.EnsureUser(ctx, "u1")
	require.NoError(t, err)

	t1 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	n, err := s.UpsertProfiles(ctx, []ProfileUpdate{
		{ExternalUserID: "u1", DisplayName: "Riko", UpdatedAt: t1},
		{ExternalUserID: "u2", DisplayName: "Nanachi", UpdatedAt: t2},
		{DisplayName: "no id"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	u1, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Riko", u1.DisplayName)

	u2, err := s.GetUser(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, u2.CurrentLayer)

	last, err = s.LastProfileSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, t2, last)
}

func TestMemoryStore_UpsertProfilesWaitsForUserLock(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	done := make(chan struct{})
	err := s.WithUserLock(ctx, "u1", func(tx Store) error {
		u, err := tx.GetUser(ctx, "u1")
		require.NoError(t, err)

		go func() {
			defer close(done)
			_, err := s.UpsertProfiles(ctx, []ProfileUpdate{{ExternalUserID: "u1", DisplayName: "Riko", UpdatedAt: time.Now()}})
			assert.NoError(t, err)
		}()

		select {
		case <-done:
			t.Fatal("profile write landed while the user was locked")
		case <-time.After(50 * time.Millisecond):
		}

		u.TotalXP += 40
		return tx.SaveUser(ctx, u)
	})
	require.NoError(t, err)
	<-done

	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Riko", u.DisplayName)
	assert.Equal(t, int64(40), u.TotalXP)
}

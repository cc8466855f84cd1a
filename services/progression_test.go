package services_test

import (
	"context"
	"testing"

	"climb-progression-system/messaging"
	"climb-progression-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvanceLayer_RequiresLayerQuest(t *testing.T) {
	h := newHarness(t, noDrop, nil)
	ctx := context.Background()
	h.grantXP(t, "climber-1", 3000)

	adv, err := h.progression.AdvanceLayer(ctx, "climber-1")
	require.NoError(t, err)
	assert.False(t, adv.Advanced)
	assert.Equal(t, 1, adv.PreviousLayer)
	assert.Equal(t, 1, adv.NewLayer)

	snap, err := h.progression.GetLayerProgress(ctx, "climber-1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.CurrentLayer)
	assert.True(t, snap.XPGateMet)
	assert.False(t, snap.QuestGateMet)
	assert.Equal(t, 3, snap.XPProgress.CurrentLayer, "xp-only layer ignores the quest gate")
	require.NotNil(t, snap.LayerQuest)
	assert.Equal(t, "Edge of the Abyss", snap.LayerQuest.Title)
}

func TestAdvanceLayer_AfterLayerQuest(t *testing.T) {
	h := newHarness(t, noDrop, nil)
	ctx := context.Background()
	h.grantXP(t, "climber-1", 3000)

	sessionID := h.startSession(t, "climber-1")
	for range 10 {
		h.send(t, "climber-1", sessionID, "V0", 5)
	}
	layerQuest, err := h.quests.EnsureLayerQuest(ctx, "climber-1", 1)
	require.NoError(t, err)

	res, err := h.quests.CompleteQuest(ctx, "climber-1", layerQuest.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.User.CurrentLayer, "layer 2 quest is still open")
	assert.Contains(t, h.events.types(), messaging.EventLayerAdvanced)

	adv, err := h.progression.AdvanceLayer(ctx, "climber-1")
	require.NoError(t, err)
	assert.False(t, adv.Advanced)
	assert.Equal(t, 2, adv.NewLayer)

	// the layer_2 achievement landed with the quest completion
	achievements, err := h.store.GetUserAchievements(ctx, "climber-1")
	require.NoError(t, err)
	var ids []string
	for _, a := range achievements {
		ids = append(ids, a.AchievementID)
	}
	assert.Contains(t, ids, "layer_2")
}

func TestLayerFromXP(t *testing.T) {
	h := newHarness(t, noDrop, nil)
	h.grantXP(t, "climber-1", 900)

	snap, err := h.progression.GetLayerProgress(context.Background(), "climber-1")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.XPProgress.CurrentLayer)
	assert.Equal(t, int64(100), snap.XPProgress.CurrentLayerXP)
	assert.Equal(t, int64(800), snap.NextLayerThreshold)
}

func TestAwardXP_RejectsNegative(t *testing.T) {
	h := newHarness(t, noDrop, nil)
	_, err := h.progression.AwardXP(context.Background(), "climber-1", -5, "test")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestResetProgress(t *testing.T) {
	h := newHarness(t, noDrop, nil)
	ctx := context.Background()
	sessionID := h.startSession(t, "climber-1")
	h.send(t, "climber-1", sessionID, "V4", 1)

	user, err := h.progression.ResetProgress(ctx, "climber-1")
	require.NoError(t, err)
	assert.Zero(t, user.TotalXP)
	assert.Equal(t, 1, user.CurrentLayer)
	assert.Equal(t, 2, user.WhistleLevel, "whistle follows skills, not xp")
}

func TestAdminPathsRefuseUnknownUsers(t *testing.T) {
	h := newHarness(t, noDrop, nil)
	ctx := context.Background()

	_, err := h.progression.GrantXP(ctx, "ghost", 100, "typo")
	assert.ErrorIs(t, err, models.ErrUserNotFound)
	_, err = h.progression.ResetProgress(ctx, "ghost")
	assert.ErrorIs(t, err, models.ErrUserNotFound)

	_, err = h.store.GetUser(ctx, "ghost")
	assert.ErrorIs(t, err, models.ErrUserNotFound, "no record is created")

	h.grantXP(t, "climber-1", 10)
	user, err := h.progression.GrantXP(ctx, "climber-1", 90, "event prize")
	require.NoError(t, err)
	assert.Equal(t, int64(100), user.TotalXP)
}

package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"climb-progression-system/gamification"
	"climb-progression-system/messaging"
	"climb-progression-system/repository"
	"climb-progression-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type noDropRandom struct{}

func (noDropRandom) Float64() float64 { return 0.99 }
func (noDropRandom) Intn(int) int     { return 0 }

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	store := repository.NewMemoryStore()
	events := messaging.NoopPublisher{}
	logger := zap.NewNop()

	achievements := services.NewAchievementService(store, gamification.NewAchievementCatalog(), events, logger)
	relics := services.NewRelicService(store, gamification.NewRelicCatalog(), noDropRandom{}, events, logger)

	app := fiber.New()
	SetupRoutes(app, Deps{
		Progression:  services.NewProgressionService(store, events, logger),
		Quests:       services.NewQuestService(store, gamification.NewQuestCatalog(), nil, achievements, events, noDropRandom{}, logger),
		Sessions:     services.NewSessionService(store, achievements, events, logger),
		Engine:       services.NewEngine(store, achievements, relics, events, logger),
		Achievements: achievements,
		Relics:       relics,
		Logger:       logger,
	})
	return app
}

func call(t *testing.T, app *fiber.App, method, path, user, roles string, body any) (int, map[string]any, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	if roles != "" {
		req.Header.Set("X-User-Roles", roles)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var obj map[string]any
	_ = json.Unmarshal(raw, &obj)
	return resp.StatusCode, obj, raw
}

func TestSessionAndProblemFlow(t *testing.T) {
	app := newTestApp(t)

	status, sess, _ := call(t, app, "POST", "/user/sessions", "climber-1", "", map[string]string{"location": "Boulder Barn"})
	require.Equal(t, fiber.StatusCreated, status)
	sessionID := sess["id"].(string)

	problem := map[string]any{
		"grade":      "V5",
		"style":      "technical",
		"hold_type":  "crimp",
		"wall_angle": "vertical",
		"completed":  true,
		"attempts":   1,
	}
	status, outcome, _ := call(t, app, "POST", "/user/sessions/"+sessionID+"/problems", "climber-1", "", problem)
	require.Equal(t, fiber.StatusCreated, status)
	assert.EqualValues(t, 27, outcome["xp_earned"])

	status, body, _ := call(t, app, "POST", "/user/sessions/"+sessionID+"/problems", "climber-1", "",
		map[string]any{"grade": "V99", "completed": true})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body["error"], "unknown grade")

	status, _, _ = call(t, app, "POST", "/user/sessions/"+sessionID+"/problems", "climber-1", "",
		map[string]any{"grade": "V3", "attempts": -1})
	assert.Equal(t, fiber.StatusBadRequest, status, "validator rejects negative attempts")

	status, _, _ = call(t, app, "GET", "/user/sessions/"+sessionID, "climber-2", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _, _ = call(t, app, "POST", "/user/sessions/"+sessionID+"/complete", "climber-1", "", nil)
	require.Equal(t, fiber.StatusOK, status)

	status, body, _ = call(t, app, "POST", "/user/sessions/"+sessionID+"/problems", "climber-1", "", problem)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "session_closed", body["reason"])

	status, progress, _ := call(t, app, "GET", "/user/progress", "climber-1", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, progress["current_layer"])
	assert.Greater(t, progress["total_xp"].(float64), float64(27))
}

func TestQuestRoutes(t *testing.T) {
	app := newTestApp(t)

	status, body, _ := call(t, app, "POST", "/user/quests/daily", "climber-1", "", nil)
	require.Equal(t, fiber.StatusCreated, status)
	created := body["created"].([]any)
	require.Len(t, created, 3)
	dailyID := created[0].(map[string]any)["id"].(string)

	status, body, _ = call(t, app, "POST", "/user/quests/"+dailyID+"/complete", "climber-1", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Greater(t, body["xp_awarded"].(float64), float64(0))

	status, body, _ = call(t, app, "POST", "/user/quests/"+dailyID+"/complete", "climber-1", "", nil)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "quest_not_active", body["reason"])

	status, _, raw := call(t, app, "GET", "/user/quests?status=active", "climber-1", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	var quests []map[string]any
	require.NoError(t, json.Unmarshal(raw, &quests))

	var layerID string
	for _, q := range quests {
		if q["quest_type"] == "layer" {
			layerID = q["id"].(string)
		}
	}
	require.NotEmpty(t, layerID)

	status, body, _ = call(t, app, "POST", "/user/quests/"+layerID+"/discard", "climber-1", "", nil)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "layer_quest_not_discardable", body["reason"])

	status, _, _ = call(t, app, "GET", "/user/quests?status=bogus", "climber-1", "", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _, _ = call(t, app, "POST", "/user/quests/does-not-exist/complete", "climber-1", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestAdminRoutes(t *testing.T) {
	app := newTestApp(t)
	grant := map[string]any{"user_id": "climber-9", "xp": 150, "reason": "event prize"}

	status, _, _ := call(t, app, "POST", "/s/admin/xp/grant", "ops-1", "user", grant)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _, _ = call(t, app, "POST", "/s/admin/xp/grant", "ops-1", "admin", map[string]any{"user_id": "climber-9", "xp": 0})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _, _ = call(t, app, "POST", "/s/admin/xp/grant", "ops-1", "admin", grant)
	assert.Equal(t, fiber.StatusNotFound, status, "unknown users are not created")
	status, _, _ = call(t, app, "POST", "/s/admin/users/climber-9/reset", "ops-1", "admin", nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _, _ = call(t, app, "GET", "/user/progress", "climber-9", "", nil)
	require.Equal(t, fiber.StatusOK, status)

	status, body, _ := call(t, app, "POST", "/s/admin/xp/grant", "ops-1", "admin", grant)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 150, body["user"].(map[string]any)["total_xp"])

	status, body, _ = call(t, app, "POST", "/s/admin/users/climber-9/reset", "ops-1", "admin", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 0, body["total_xp"])

	status, body, _ = call(t, app, "POST", "/s/admin/quests/expire", "ops-1", "admin", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 0, body["expired"])
}

func TestConvertGrade(t *testing.T) {
	app := newTestApp(t)

	status, body, _ := call(t, app, "GET", "/grades/convert?grade=6c&from=font&to=vscale", "", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "V5", body["result"])
	assert.EqualValues(t, 5, body["ordinal"])

	status, _, _ = call(t, app, "GET", "/grades/convert?grade=V4&to=klingon", "", "", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _, _ = call(t, app, "GET", "/grades/convert?grade=V40", "", "", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

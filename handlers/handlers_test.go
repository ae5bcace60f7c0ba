package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"community-points/config"
	"community-points/models"
	"community-points/services"
	"community-points/utils"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testToken = "gateway-secret"

type fakeFetcher map[string]*services.PostData

func (f fakeFetcher) Fetch(_ context.Context, ref utils.PostRef, _ services.FetchOptions) (*services.PostData, error) {
	d, ok := f[ref.ID]
	if !ok {
		return nil, services.ErrPostNotFound
	}
	cp := *d
	return &cp, nil
}

type testEnv struct {
	app *fiber.App
	db  *gorm.DB
}

func setupApp(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+strings.ReplaceAll(t.Name(), "/", "_")+"?mode=memory&cache=shared"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.AutoMigrate(db))

	fetcher := fakeFetcher{
		"100": {ExternalID: "100", Author: "alice", Content: "Excited to be building with @layeredge", Counts: &services.EngagementCounts{Likes: 10}, Source: services.SourceAPI},
		"200": {ExternalID: "200", Author: "alice", Content: "nothing to see here", Counts: &services.EngagementCounts{}, Source: services.SourceAPI},
		"300": {ExternalID: "300", Author: "bob", Content: "gm @layeredge", Counts: &services.EngagementCounts{}, Source: services.SourceAPI},
	}

	points := services.NewPointsService(db, services.DefaultPointsWeights)
	quests := services.NewQuestService(db, points)
	require.NoError(t, quests.SeedDefaults())
	posts := services.NewPostService(db, points, services.NewContentValidator(services.KeywordLists{}), fetcher, quests, false)
	lb := services.NewLeaderboardService(db)

	cfg := &config.Config{
		ServiceToken:   testToken,
		AllowedOrigins: []string{"http://localhost:3000"},
		Submission:     config.SubmissionConfig{Max: 4, Window: time.Minute},
	}
	app := NewApp(cfg, Services{
		Points:      points,
		Leaderboard: lb,
		Posts:       posts,
		Quests:      quests,
		Admin:       services.NewAdminService(db, points, nil, false, false),
		Snapshots:   services.NewSnapshotService(lb, nil),
		Stream:      services.NewPointsStream(db),
	})
	return &testEnv{app: app, db: db}
}

type reqOpts struct {
	user  string
	roles string
	body  any
	token string
}

func (e *testEnv) do(t *testing.T, method, path string, o reqOpts) (int, map[string]any) {
	t.Helper()
	var body io.Reader
	if o.body != nil {
		raw, err := json.Marshal(o.body)
		require.NoError(t, err)
		body = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	token := o.token
	if token == "" {
		token = testToken
	}
	if token != "-" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if o.user != "" {
		req.Header.Set("X-User-ID", "ext-"+o.user)
		req.Header.Set("X-Username", o.user)
	}
	if o.roles != "" {
		req.Header.Set("X-User-Roles", o.roles)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestGatewayTokenRequired(t *testing.T) {
	env := setupApp(t)

	status, _ := env.do(t, http.MethodGet, "/health", reqOpts{token: "-"})
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = env.do(t, http.MethodGet, "/health", reqOpts{token: "wrong"})
	require.Equal(t, http.StatusUnauthorized, status)

	status, body := env.do(t, http.MethodGet, "/health", reqOpts{})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok", body["status"])

	status, _ = env.do(t, http.MethodGet, "/metrics", reqOpts{})
	require.Equal(t, http.StatusOK, status)
}

func TestUserRoutesNeedIdentity(t *testing.T) {
	env := setupApp(t)

	status, _ := env.do(t, http.MethodGet, "/user/stats", reqOpts{})
	require.Equal(t, http.StatusUnauthorized, status)

	status, body := env.do(t, http.MethodGet, "/user/stats", reqOpts{user: "alice"})
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 0, body["total_points"])
	require.EqualValues(t, 1, body["rank"])
}

func TestSubmitFlow(t *testing.T) {
	env := setupApp(t)
	alice := reqOpts{user: "alice"}

	alice.body = map[string]string{"url": "https://x.com/alice/status/100"}
	status, body := env.do(t, http.MethodPost, "/posts", alice)
	require.Equal(t, http.StatusCreated, status)
	require.EqualValues(t, 15, body["points_awarded"])

	status, _ = env.do(t, http.MethodPost, "/posts", alice)
	require.Equal(t, http.StatusConflict, status)

	alice.body = map[string]string{"url": "https://x.com/alice/status/200"}
	status, body = env.do(t, http.MethodPost, "/posts", alice)
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.NotEmpty(t, body["suggestions"])

	alice.body = map[string]string{"url": "https://x.com/bob/status/300"}
	status, _ = env.do(t, http.MethodPost, "/posts", alice)
	require.Equal(t, http.StatusForbidden, status)

	// per-user submission limit
	alice.body = map[string]string{"url": "https://x.com/alice/status/999"}
	status, _ = env.do(t, http.MethodPost, "/posts", alice)
	require.Equal(t, http.StatusTooManyRequests, status)

	status, body = env.do(t, http.MethodGet, "/leaderboard", reqOpts{})
	require.Equal(t, http.StatusOK, status)
	entries := body["entries"].([]any)
	require.Len(t, entries, 1)
	require.Equal(t, "alice", entries[0].(map[string]any)["username"])
	require.EqualValues(t, 15, entries[0].(map[string]any)["total_points"])

	status, body = env.do(t, http.MethodGet, "/posts/mine", reqOpts{user: "alice"})
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 1, body["total"])
}

func TestSubmitValidation(t *testing.T) {
	env := setupApp(t)

	status, body := env.do(t, http.MethodPost, "/posts", reqOpts{user: "alice", body: map[string]string{}})
	require.Equal(t, http.StatusBadRequest, status)
	require.NotEmpty(t, body["fields"])

	status, _ = env.do(t, http.MethodPost, "/posts", reqOpts{user: "alice", body: map[string]string{"url": "https://example.com/x"}})
	require.Equal(t, http.StatusBadRequest, status)
}

func TestQuestClaimOverHTTP(t *testing.T) {
	env := setupApp(t)
	alice := reqOpts{user: "alice", body: map[string]string{"url": "https://x.com/alice/status/100"}}
	status, _ := env.do(t, http.MethodPost, "/posts", alice)
	require.Equal(t, http.StatusCreated, status)

	var quest models.Quest
	require.NoError(t, env.db.Where("code = ?", "first-submission").First(&quest).Error)

	status, _ = env.do(t, http.MethodPost, "/quests/"+quest.ID+"/claim", reqOpts{user: "alice"})
	require.Equal(t, http.StatusOK, status)

	status, _ = env.do(t, http.MethodPost, "/quests/"+quest.ID+"/claim", reqOpts{user: "alice"})
	require.Equal(t, http.StatusConflict, status)

	var five models.Quest
	require.NoError(t, env.db.Where("code = ?", "five-verified-posts").First(&five).Error)
	status, _ = env.do(t, http.MethodPost, "/quests/"+five.ID+"/claim", reqOpts{user: "alice"})
	require.Equal(t, http.StatusBadRequest, status)

	status, body := env.do(t, http.MethodGet, "/quests", reqOpts{user: "alice"})
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["quests"].([]any), len(models.QuestDefinitions))
}

func TestAdminRoutes(t *testing.T) {
	env := setupApp(t)

	status, _ := env.do(t, http.MethodGet, "/admin/stats", reqOpts{user: "mallory"})
	require.Equal(t, http.StatusForbidden, status)

	admin := reqOpts{user: "root", roles: "user, admin"}
	status, body := env.do(t, http.MethodGet, "/admin/stats", admin)
	require.Equal(t, http.StatusOK, status)
	// mallory was created by the rejected request
	require.EqualValues(t, 2, body["users"])

	// create the target user through their first request
	status, _ = env.do(t, http.MethodGet, "/user/stats", reqOpts{user: "alice"})
	require.Equal(t, http.StatusOK, status)
	var alice models.User
	require.NoError(t, env.db.Where("external_id = ?", "ext-alice").First(&alice).Error)

	admin.body = map[string]any{"user_id": alice.ID, "delta": 25, "note": "event prize"}
	status, body = env.do(t, http.MethodPost, "/admin/points/adjust", admin)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 25, body["total_points"])

	admin.body = nil
	status, body = env.do(t, http.MethodGet, "/admin/points/reconcile", admin)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 0, body["count"])

	status, _ = env.do(t, http.MethodPost, "/admin/users/"+alice.ID+"/ban", admin)
	require.Equal(t, http.StatusOK, status)

	status, _ = env.do(t, http.MethodPost, "/posts", reqOpts{user: "alice", body: map[string]string{"url": "https://x.com/alice/status/100"}})
	require.Equal(t, http.StatusForbidden, status)

	status, _ = env.do(t, http.MethodPost, "/admin/leaderboard/snapshot", admin)
	require.Equal(t, http.StatusNotImplemented, status)

	admin.body = map[string]any{"name": "Weekend Warrior", "type": "submit_posts", "target": 3, "reward_points": 15}
	status, body = env.do(t, http.MethodPost, "/admin/quests", admin)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, "weekend-warrior", body["code"])
}

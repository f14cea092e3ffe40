package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackrater/src/app/middleware"
	"trackrater/src/app/realtime"
	"trackrater/src/core/ports"
	"trackrater/src/core/usecase"
	"trackrater/src/infra/config"
	"trackrater/src/infra/logger"
	"trackrater/src/infra/metrics"
	"trackrater/src/infra/repo"
)

const botSecret = "bot-secret"

type downService struct{}

func (downService) Health(context.Context) error { return errors.New("connection refused") }

type harness struct {
	srv   *Server
	store *repo.MemoryRepository
	queue *usecase.QueueService
}

func newHarness(t *testing.T, botToken string, external map[string]ports.ExternalService) *harness {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{Port: 0, ShutdownTimeout: time.Second},
		Log:    config.LogConfig{Level: "info"},
		Auth:   config.AuthConfig{BotAPIToken: botToken},
		Queue:  config.QueueConfig{ViewLimit: 100},
	}
	log := logger.Discard()
	m := metrics.New()
	store := repo.NewMemoryRepository(time.Now)
	hub := realtime.NewHub(cfg.Realtime, log, m)
	live := usecase.NewLiveState(nil, time.Now)
	links := usecase.Links{BaseURL: "https://rate.example.com"}
	gw := usecase.NewGateway(hub, store, live, links, 100, log, m)
	queue := usecase.NewQueueService(store, live, gw, time.Now, 100, log)
	playback := usecase.NewPlaybackService(store, live, gw, links, log)
	rating := usecase.NewRatingService(store, live, gw, links, log)
	hub.SetHandler(realtime.NewDispatcher(queue, playback, rating, gw, m, log))

	srv := New(cfg, log, Deps{
		Health:      usecase.NewHealthService(log, store, external),
		Queue:       queue,
		Playback:    playback,
		Rating:      rating,
		Submissions: usecase.NewSubmissionService(store, queue, gw, time.Now, log),
		Metrics:     m,
		Realtime:    hub,
		OnShutdown:  hub.Close,
	})
	return &harness{srv: srv, store: store, queue: queue}
}

func (h *harness) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.srv.Router().ServeHTTP(rec, req)
	return rec
}

func (h *harness) bot(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return h.do(t, method, path, body, map[string]string{middleware.BotTokenHeader: botSecret})
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env.Error.Code
}

func TestHealth(t *testing.T) {
	h := newHarness(t, botSecret, nil)
	rec := h.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = h.do(t, http.MethodGet, "/health/detailed", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDetailedHealthDegraded(t *testing.T) {
	h := newHarness(t, botSecret, map[string]ports.ExternalService{"redis": downService{}})
	rec := h.do(t, http.MethodGet, "/health/detailed", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status usecase.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, "unhealthy", status.Components["redis"].Status)
	assert.Equal(t, "healthy", status.Components["database"].Status)
}

func TestBotTokenGuard(t *testing.T) {
	body := `{"tg_user_id":1,"file_key":"k","original_ext":"mp3"}`

	disabled := newHarness(t, "", nil)
	rec := disabled.do(t, http.MethodPost, "/v1/bot/submissions", body, map[string]string{middleware.BotTokenHeader: "x"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h := newHarness(t, botSecret, nil)
	rec = h.do(t, http.MethodPost, "/v1/bot/submissions", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))

	rec = h.do(t, http.MethodPost, "/v1/bot/submissions", body, map[string]string{middleware.BotTokenHeader: "wrong"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	n, err := h.store.CountSubmissionsByStatus(context.Background(), "draft")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBotIntakeFlow(t *testing.T) {
	h := newHarness(t, botSecret, nil)

	rec := h.bot(t, http.MethodPost, "/v1/bot/submissions", `{"tg_user_id":77,"tg_username":"fan","file_key":"abc","original_ext":".wav","duration_sec":180}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		SubmissionID int64 `json:"submission_id"`
	}
	decodeData(t, rec, &created)
	require.Positive(t, created.SubmissionID)
	base := "/v1/bot/submissions/" + jsonInt(created.SubmissionID)

	rec = h.bot(t, http.MethodPost, base+"/enqueue_free", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))

	rec = h.bot(t, http.MethodPost, base+"/metadata", `{"artist":"Band","title":"Song"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.bot(t, http.MethodPost, base+"/waiting_payment", `{"priority":300,"provider":"telegram_stars","ref":"inv-1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.bot(t, http.MethodPost, base+"/mark_paid", `{"provider":"telegram_stars","provider_ref":"inv-1","amount":300}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pos struct {
		OK       bool `json:"ok"`
		Position int  `json:"position"`
	}
	decodeData(t, rec, &pos)
	assert.True(t, pos.OK)
	assert.Equal(t, 1, pos.Position)

	rec = h.bot(t, http.MethodPost, base+"/mark_paid", `{"provider":"telegram_stars","provider_ref":"inv-2","amount":300}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.bot(t, http.MethodGet, "/v1/bot/my_queue?tg_user_id=77", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []struct {
		ID       int64  `json:"id"`
		Display  string `json:"display"`
		Priority int    `json:"priority"`
		Status   string `json:"status"`
	}
	decodeData(t, rec, &mine)
	require.Len(t, mine, 1)
	assert.Equal(t, created.SubmissionID, mine[0].ID)
	assert.Equal(t, 300, mine[0].Priority)
	assert.Equal(t, "queued", mine[0].Status)

	rec = h.bot(t, http.MethodGet, "/v1/bot/my_queue?tg_user_id=abc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &mine)
	assert.Empty(t, mine)

	rec = h.bot(t, http.MethodPost, "/v1/bot/submissions/0/cancel", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBotCreateRejectsBadPayload(t *testing.T) {
	h := newHarness(t, botSecret, nil)

	rec := h.bot(t, http.MethodPost, "/v1/bot/submissions", `{"tg_user_id":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BAD_REQUEST", errorCode(t, rec))

	rec = h.bot(t, http.MethodPost, "/v1/bot/submissions", `{"tg_user_id":1,"file_key":"k","original_ext":"exe"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
}

func TestPublicQueue(t *testing.T) {
	h := newHarness(t, botSecret, nil)
	for _, artist := range []string{"one", "two"} {
		rec := h.bot(t, http.MethodPost, "/v1/bot/submissions", `{"tg_user_id":5,"file_key":"`+artist+`","original_ext":"mp3"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		var created struct {
			SubmissionID int64 `json:"submission_id"`
		}
		decodeData(t, rec, &created)
		base := "/v1/bot/submissions/" + jsonInt(created.SubmissionID)
		require.Equal(t, http.StatusOK, h.bot(t, http.MethodPost, base+"/metadata", `{"artist":"`+artist+`"}`).Code)
		require.Equal(t, http.StatusOK, h.bot(t, http.MethodPost, base+"/enqueue_free", "").Code)
	}

	rec := h.do(t, http.MethodGet, "/v1/queue?limit=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view usecase.QueueStateView
	decodeData(t, rec, &view)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "one", view.Items[0].DisplayName)
	assert.Equal(t, 2, view.Counts["queued"])

	rec = h.do(t, http.MethodGet, "/v1/queue?limit=many", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/v1/queue/2/position", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"submission_id":2,"position":2}}`, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/v1/queue/99/position", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLiveSnapshots(t *testing.T) {
	h := newHarness(t, botSecret, nil)

	rec := h.do(t, http.MethodGet, "/v1/playback", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pb usecase.PlaybackStateView
	decodeData(t, rec, &pb)
	assert.Nil(t, pb.Active)
	assert.False(t, pb.Playback.IsPlaying)

	rec = h.do(t, http.MethodGet, "/v1/rating/state", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var panel usecase.PanelStateView
	decodeData(t, rec, &panel)
	assert.Empty(t, panel.Raters)
	assert.Len(t, panel.Criteria, 5)
}

func TestNoRouteAndMetrics(t *testing.T) {
	h := newHarness(t, botSecret, nil)

	rec := h.do(t, http.MethodGet, "/nope", "", map[string]string{"X-Request-ID": "req-1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":{"code":"NOT_FOUND","message":"The requested resource was not found","request_id":"req-1"}}`, rec.Body.String())

	h.do(t, http.MethodGet, "/v1/queue", "", nil)
	rec = h.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `http_requests_total{method="GET",path="/v1/queue",status="200"} 1`)
	assert.Contains(t, body, `path="unmatched"`)
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t, botSecret, nil)
	rec := h.do(t, http.MethodOptions, "/v1/queue", "", map[string]string{"Origin": "https://obs.example.com"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), middleware.BotTokenHeader)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

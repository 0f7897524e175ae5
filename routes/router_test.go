package routes

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"polls-backend/config"
	"polls-backend/middleware"
	"polls-backend/mq"
	"polls-backend/repository"
	"polls-backend/service"
	"polls-backend/testutil"
	"polls-backend/websocket"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestRouter(t *testing.T, mount string, limiter *middleware.VoteRateLimiter) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	broker := mq.NewMemoryBroker()
	t.Cleanup(func() { broker.Close() })
	svc := service.NewPollService(repository.NewQuestionRepository(db), broker)

	router, err := SetupRouter(Dependencies{
		Config: config.Config{
			MountPath:        mount,
			CORSAllowOrigins: []string{"*"},
		},
		DB:      db,
		Service: svc,
		Broker:  broker,
		Hub:     websocket.NewHub(svc.Results),
		Limiter: limiter,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return router, db
}

func serve(router *gin.Engine, method, path string, body io.Reader) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	router.ServeHTTP(w, req)
	return w
}

func TestSetupRouter_Mounts(t *testing.T) {
	router, db := newTestRouter(t, "/polls", nil)
	q := testutil.CreateQuestion(t, db, "Routed?", -1)

	w := serve(router, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/polls/", w.Header().Get("Location"))

	w = serve(router, http.MethodGet, "/polls/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Routed?")
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	w = serve(router, http.MethodGet, fmt.Sprintf("/polls/%d", q.ID), nil)
	assert.Equal(t, http.StatusMovedPermanently, w.Code, "trailing slash redirect")

	w = serve(router, http.MethodGet, "/static/style.css", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(router, http.MethodGet, "/api/questions", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(router, http.MethodGet, "/polls/does/not/exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetupRouter_RootMount(t *testing.T) {
	router, db := newTestRouter(t, "", nil)
	q := testutil.CreateQuestion(t, db, "At the root", -1)
	c := testutil.AddChoice(t, db, q, "Yes")

	w := serve(router, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), fmt.Sprintf(`href="/%d/"`, q.ID))

	form := url.Values{"choice": {fmt.Sprint(c.ID)}}
	w = serve(router, http.MethodPost, fmt.Sprintf("/%d/vote/", q.ID), strings.NewReader(form.Encode()))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, fmt.Sprintf("/%d/results/", q.ID), w.Header().Get("Location"))
}

func TestSetupRouter_VoteRateLimit(t *testing.T) {
	router, db := newTestRouter(t, "/polls", middleware.NewVoteRateLimiter(0.001, 2))
	q := testutil.CreateQuestion(t, db, "Limited", -1)
	c := testutil.AddChoice(t, db, q, "A")

	form := url.Values{"choice": {fmt.Sprint(c.ID)}}.Encode()
	path := fmt.Sprintf("/polls/%d/vote/", q.ID)

	assert.Equal(t, http.StatusFound, serve(router, http.MethodPost, path, strings.NewReader(form)).Code)
	assert.Equal(t, http.StatusFound, serve(router, http.MethodPost, path, strings.NewReader(form)).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodPost, path, strings.NewReader(form)).Code)
	assert.Equal(t, int64(2), testutil.Votes(t, db, c.ID))
}

func TestSetupRouter_CORS(t *testing.T) {
	router, _ := newTestRouter(t, "/polls", nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodOptions, "/api/questions", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

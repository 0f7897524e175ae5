package handlers_test

import (
	"io"
	"log/slog"
	"testing"

	"polls-backend/config"
	"polls-backend/middleware"
	"polls-backend/mq"
	"polls-backend/repository"
	"polls-backend/routes"
	"polls-backend/service"
	"polls-backend/testutil"
	"polls-backend/websocket"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testMount = "/polls"

// SetupTestEnvironment builds the server's router over a private in-memory
// database, with vote rate limiting disabled.
func SetupTestEnvironment(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	broker := mq.NewMemoryBroker()
	t.Cleanup(func() { broker.Close() })

	svc := service.NewPollService(repository.NewQuestionRepository(db), broker)

	router, err := routes.SetupRouter(routes.Dependencies{
		Config: config.Config{
			MountPath:        testMount,
			CORSAllowOrigins: []string{"*"},
		},
		DB:      db,
		Service: svc,
		Broker:  broker,
		Hub:     websocket.NewHub(svc.Results),
		Limiter: middleware.NewVoteRateLimiter(0, 0),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return router, db
}

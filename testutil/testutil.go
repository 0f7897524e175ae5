package testutil

import (
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"polls-backend/database"
	"polls-backend/migrations"
	"polls-backend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB opens a private in-memory sqlite database with the full schema.
// Each call gets its own database so tests never see each other's rows.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := database.OpenDialector(sqlite.Open(dsn), logger.Default.LogMode(logger.Silent))
	require.NoError(t, err, "open in-memory database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, migrations.Run(db), "migrate test database")

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

// CreateQuestion creates a question published the given number of days
// offset to now (negative for the past, positive for not yet published).
func CreateQuestion(t *testing.T, db *gorm.DB, text string, days int) *models.Question {
	t.Helper()
	return CreateQuestionAt(t, db, text, time.Now().Add(time.Duration(days)*24*time.Hour))
}

// CreateQuestionAt creates a question with an exact publication time.
func CreateQuestionAt(t *testing.T, db *gorm.DB, text string, pubDate time.Time) *models.Question {
	t.Helper()

	q := &models.Question{QuestionText: text, PubDate: pubDate.UTC()}
	require.NoError(t, db.Create(q).Error, "create question")
	return q
}

// AddChoice adds a choice with zero votes to q.
func AddChoice(t *testing.T, db *gorm.DB, q *models.Question, text string) *models.Choice {
	t.Helper()

	c := &models.Choice{QuestionID: q.ID, ChoiceText: text}
	require.NoError(t, db.Create(c).Error, "create choice")
	return c
}

// Votes reads the current tally of a choice straight from the database.
func Votes(t *testing.T, db *gorm.DB, choiceID uint) int64 {
	t.Helper()

	var c models.Choice
	require.NoError(t, db.First(&c, choiceID).Error, "load choice")
	return c.Votes
}

// AssertStatus checks the recorder status and prints the body on mismatch.
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

package migrations

import (
	"fmt"
	"log/slog"

	"polls-backend/models"

	"gorm.io/gorm"
)

// PubDateIndex serves the "latest published" listing, which filters and
// orders on pub_date with id as tie-breaker.
const PubDateIndex = "idx_questions_pub_date_id"

// Run brings the schema up to date. It is safe to call on every start.
func Run(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Question{}, &models.Choice{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := AddPubDateIndex(db); err != nil {
		return err
	}
	slog.Info("database migrations completed")
	return nil
}

// AddPubDateIndex creates the composite listing index if it is missing.
func AddPubDateIndex(db *gorm.DB) error {
	if db.Migrator().HasIndex(&models.Question{}, PubDateIndex) {
		slog.Debug("migration skipped, index exists", "index", PubDateIndex)
		return nil
	}

	stmt := fmt.Sprintf("CREATE INDEX %s ON questions (pub_date DESC, id DESC)", PubDateIndex)
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("create index %s: %w", PubDateIndex, err)
	}
	slog.Info("migration applied", "index", PubDateIndex)
	return nil
}

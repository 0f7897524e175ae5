package database

import (
	"fmt"
	"log/slog"
	"time"

	"polls-backend/models"

	"gorm.io/gorm"
)

// SeedSampleData inserts a couple of published questions when the questions
// table is empty. It is only called in development.
func SeedSampleData(db *gorm.DB, now time.Time) error {
	var count int64
	if err := db.Model(&models.Question{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count questions: %w", err)
	}
	if count > 0 {
		slog.Info("database already has questions, skipping sample data", "count", count)
		return nil
	}

	samples := []models.Question{
		{
			QuestionText: "What's up?",
			PubDate:      now.Add(-2 * time.Hour).UTC(),
			Choices: []models.Choice{
				{ChoiceText: "Not much"},
				{ChoiceText: "The sky"},
				{ChoiceText: "Just hacking again"},
			},
		},
		{
			QuestionText: "Which language do you reach for first?",
			PubDate:      now.Add(-3 * 24 * time.Hour).UTC(),
			Choices: []models.Choice{
				{ChoiceText: "Go"},
				{ChoiceText: "Python"},
				{ChoiceText: "Rust"},
			},
		},
	}

	return db.Transaction(func(tx *gorm.DB) error {
		for i := range samples {
			if err := tx.Create(&samples[i]).Error; err != nil {
				return fmt.Errorf("create sample question: %w", err)
			}
		}
		slog.Info("sample data created", "questions", len(samples))
		return nil
	})
}

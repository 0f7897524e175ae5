package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"polls-backend/models"

	"gorm.io/gorm"
)

var (
	// ErrQuestionNotFound is returned when no question matches the lookup.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrChoiceNotFound is returned when a choice id does not belong to the question.
	ErrChoiceNotFound = errors.New("choice not found")
)

// QuestionRepository is the data access surface for questions and choices.
type QuestionRepository interface {
	// LatestPublished returns at most limit questions with pub_date <= now,
	// most recent first.
	LatestPublished(ctx context.Context, now time.Time, limit int) ([]models.Question, error)
	// FindPublished loads a question and its choices if it is published at now.
	FindPublished(ctx context.Context, id uint, now time.Time) (*models.Question, error)
	// FindByID loads a question and its choices regardless of pub_date.
	FindByID(ctx context.Context, id uint) (*models.Question, error)
	// IncrementVote adds one vote to choiceID of questionID in a single statement.
	IncrementVote(ctx context.Context, questionID, choiceID uint) error
	// ListAll returns every question, newest pub_date first.
	ListAll(ctx context.Context) ([]models.Question, error)

	CreateQuestion(ctx context.Context, q *models.Question) error
	AddChoice(ctx context.Context, c *models.Choice) error
}

// GormQuestionRepository implements QuestionRepository on gorm.
type GormQuestionRepository struct {
	db *gorm.DB
}

// NewQuestionRepository wraps db.
func NewQuestionRepository(db *gorm.DB) *GormQuestionRepository {
	return &GormQuestionRepository{db: db}
}

func orderedChoices(db *gorm.DB) *gorm.DB {
	return db.Order("choices.id ASC")
}

// LatestPublished orders by pub_date then id, both descending.
func (r *GormQuestionRepository) LatestPublished(ctx context.Context, now time.Time, limit int) ([]models.Question, error) {
	questions := []models.Question{}
	err := r.db.WithContext(ctx).
		Where("pub_date <= ?", now.UTC()).
		Order("pub_date DESC").
		Order("id DESC").
		Limit(limit).
		Find(&questions).Error
	if err != nil {
		return nil, fmt.Errorf("list latest questions: %w", err)
	}
	return questions, nil
}

// FindPublished returns ErrQuestionNotFound for future questions too.
func (r *GormQuestionRepository) FindPublished(ctx context.Context, id uint, now time.Time) (*models.Question, error) {
	return r.first(r.db.WithContext(ctx).Where("pub_date <= ?", now.UTC()), id)
}

// FindByID is used by admin tooling, which sees unpublished questions.
func (r *GormQuestionRepository) FindByID(ctx context.Context, id uint) (*models.Question, error) {
	return r.first(r.db.WithContext(ctx), id)
}

func (r *GormQuestionRepository) first(tx *gorm.DB, id uint) (*models.Question, error) {
	var q models.Question
	err := tx.Preload("Choices", orderedChoices).First(&q, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load question %d: %w", id, err)
	}
	return &q, nil
}

// IncrementVote runs UPDATE choices SET votes = votes + 1 WHERE id = ? AND
// question_id = ?. The database applies the increment, so concurrent votes
// on the same choice never overwrite each other. Zero affected rows means
// the choice does not exist or belongs to another question.
func (r *GormQuestionRepository) IncrementVote(ctx context.Context, questionID, choiceID uint) error {
	res := r.db.WithContext(ctx).
		Model(&models.Choice{}).
		Where("id = ? AND question_id = ?", choiceID, questionID).
		UpdateColumn("votes", gorm.Expr("votes + ?", 1))
	if res.Error != nil {
		return fmt.Errorf("increment votes of choice %d: %w", choiceID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrChoiceNotFound
	}
	return nil
}

// ListAll preloads choices in id order.
func (r *GormQuestionRepository) ListAll(ctx context.Context) ([]models.Question, error) {
	questions := []models.Question{}
	err := r.db.WithContext(ctx).
		Preload("Choices", orderedChoices).
		Order("pub_date DESC").
		Order("id DESC").
		Find(&questions).Error
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return questions, nil
}

// CreateQuestion inserts q together with any choices attached to it.
func (r *GormQuestionRepository) CreateQuestion(ctx context.Context, q *models.Question) error {
	if err := q.Validate(); err != nil {
		return err
	}
	for _, c := range q.Choices {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	q.PubDate = q.PubDate.UTC()
	if err := r.db.WithContext(ctx).Create(q).Error; err != nil {
		return fmt.Errorf("create question: %w", err)
	}
	return nil
}

// AddChoice inserts c after checking that its question exists.
func (r *GormQuestionRepository) AddChoice(ctx context.Context, c *models.Choice) error {
	if err := c.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Question{}).Where("id = ?", c.QuestionID).Count(&n).Error; err != nil {
			return fmt.Errorf("check question %d: %w", c.QuestionID, err)
		}
		if n == 0 {
			return ErrQuestionNotFound
		}
		if err := tx.Create(c).Error; err != nil {
			return fmt.Errorf("create choice: %w", err)
		}
		return nil
	})
}

package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Field limits shared by validation and the schema.
const (
	MaxQuestionTextLen = 200
	MaxChoiceTextLen   = 200
)

// ErrEmptyText is returned by Validate for blank question or choice text.
var ErrEmptyText = errors.New("text must not be empty")

// RecentWindow is how far back WasPublishedRecently looks.
const RecentWindow = 24 * time.Hour

// Question is a poll topic. It is visible to voters only once PubDate has passed.
type Question struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	QuestionText string    `gorm:"size:200;not null" json:"question_text"`
	PubDate      time.Time `gorm:"not null" json:"pub_date"`
	Choices      []Choice  `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE" json:"choices,omitempty"`
}

// Choice is one selectable answer of a Question with its vote tally.
type Choice struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	QuestionID uint   `gorm:"not null;index" json:"question_id"`
	ChoiceText string `gorm:"size:200;not null" json:"choice_text"`
	Votes      int64  `gorm:"not null;default:0;check:votes >= 0" json:"votes"`
}

// IsPublished reports whether the question is visible at now.
func (q Question) IsPublished(now time.Time) bool {
	return !q.PubDate.After(now)
}

// WasPublishedRecently is true iff now-24h < PubDate <= now.
func (q Question) WasPublishedRecently(now time.Time) bool {
	return q.IsPublished(now) && q.PubDate.After(now.Add(-RecentWindow))
}

// TotalVotes sums the tallies of the loaded choices.
func (q Question) TotalVotes() int64 {
	var total int64
	for _, c := range q.Choices {
		total += c.Votes
	}
	return total
}

func (q Question) String() string {
	return q.QuestionText
}

func (c Choice) String() string {
	return c.ChoiceText
}

// Validate checks the text constraints enforced before insert.
func (q Question) Validate() error {
	return validateText(q.QuestionText, MaxQuestionTextLen)
}

// Validate checks the text constraints enforced before insert.
func (c Choice) Validate() error {
	return validateText(c.ChoiceText, MaxChoiceTextLen)
}

func validateText(s string, max int) error {
	if strings.TrimSpace(s) == "" {
		return ErrEmptyText
	}
	if n := utf8.RuneCountInString(s); n > max {
		return fmt.Errorf("text is %d characters, at most %d allowed", n, max)
	}
	return nil
}

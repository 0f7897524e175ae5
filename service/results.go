package service

import (
	"math"
	"time"

	"polls-backend/models"
)

// Results is the tally view of a question shared by the results page, the
// JSON API and the live feed.
type Results struct {
	QuestionID   uint           `json:"question_id"`
	QuestionText string         `json:"question_text"`
	PubDate      time.Time      `json:"pub_date"`
	TotalVotes   int64          `json:"total_votes"`
	Choices      []ChoiceResult `json:"choices"`
}

// ChoiceResult is one choice's tally and its share of the total.
type ChoiceResult struct {
	ID         uint    `json:"id"`
	ChoiceText string  `json:"choice_text"`
	Votes      int64   `json:"votes"`
	Percent    float64 `json:"percent"`
}

// NewResults computes per-choice shares rounded to one decimal.
func NewResults(q *models.Question) Results {
	total := q.TotalVotes()
	r := Results{
		QuestionID:   q.ID,
		QuestionText: q.QuestionText,
		PubDate:      q.PubDate,
		TotalVotes:   total,
		Choices:      make([]ChoiceResult, 0, len(q.Choices)),
	}
	for _, c := range q.Choices {
		cr := ChoiceResult{ID: c.ID, ChoiceText: c.ChoiceText, Votes: c.Votes}
		if total > 0 {
			cr.Percent = math.Round(float64(c.Votes)*1000/float64(total)) / 10
		}
		r.Choices = append(r.Choices, cr)
	}
	return r
}

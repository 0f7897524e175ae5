package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"polls-backend/models"
	"polls-backend/mq"
	"polls-backend/repository"
)

// IndexLimit is the number of questions shown on the index page.
const IndexLimit = 5

// ChoiceRequiredMessage is shown when a vote names no valid choice.
const ChoiceRequiredMessage = "You didn't select a choice."

// DefaultPublishTimeout bounds how long a committed vote waits on the broker.
const DefaultPublishTimeout = 2 * time.Second

var (
	ErrQuestionNotFound = errors.New("question not found")
	ErrInvalidChoice    = errors.New(ChoiceRequiredMessage)
)

// PollService is what the HTTP layer needs from the polls domain.
type PollService interface {
	Index(ctx context.Context) ([]models.Question, error)
	Detail(ctx context.Context, id uint) (*models.Question, error)
	Results(ctx context.Context, id uint) (*Results, error)
	// Vote records one vote for choiceID. A nil choiceID means the form
	// carried no usable choice.
	Vote(ctx context.Context, questionID uint, choiceID *uint) (*models.Question, error)
}

// PollServiceImpl implements PollService on a QuestionRepository.
type PollServiceImpl struct {
	repo   repository.QuestionRepository
	broker mq.Broker

	// Now is the clock used for the publication filter.
	Now func() time.Time
	// PublishTimeout caps the vote event publish after the vote committed.
	PublishTimeout time.Duration
}

// NewPollService wires the repository and an optional broker for vote events.
func NewPollService(repo repository.QuestionRepository, broker mq.Broker) *PollServiceImpl {
	return &PollServiceImpl{
		repo:           repo,
		broker:         broker,
		Now:            time.Now,
		PublishTimeout: DefaultPublishTimeout,
	}
}

// Index returns the latest published questions, newest first.
func (s *PollServiceImpl) Index(ctx context.Context) ([]models.Question, error) {
	return s.repo.LatestPublished(ctx, s.Now(), IndexLimit)
}

// Detail returns a published question with its choices.
func (s *PollServiceImpl) Detail(ctx context.Context, id uint) (*models.Question, error) {
	q, err := s.repo.FindPublished(ctx, id, s.Now())
	if errors.Is(err, repository.ErrQuestionNotFound) {
		return nil, ErrQuestionNotFound
	}
	return q, err
}

// Results returns the tallies of a published question.
func (s *PollServiceImpl) Results(ctx context.Context, id uint) (*Results, error) {
	q, err := s.Detail(ctx, id)
	if err != nil {
		return nil, err
	}
	r := NewResults(q)
	return &r, nil
}

// Vote increments the chosen choice with a single UPDATE. On ErrInvalidChoice
// the returned question is still loaded so the caller can re-render the form.
func (s *PollServiceImpl) Vote(ctx context.Context, questionID uint, choiceID *uint) (*models.Question, error) {
	q, err := s.Detail(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if choiceID == nil {
		return q, ErrInvalidChoice
	}

	err = s.repo.IncrementVote(ctx, q.ID, *choiceID)
	if errors.Is(err, repository.ErrChoiceNotFound) {
		return q, ErrInvalidChoice
	}
	if err != nil {
		return nil, err
	}

	s.publish(ctx, mq.NewVoteEvent(q.ID, *choiceID, s.Now()))
	return q, nil
}

// publish announces a committed vote. Failures are logged only.
func (s *PollServiceImpl) publish(ctx context.Context, ev mq.VoteEvent) {
	if s.broker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.PublishTimeout)
	defer cancel()
	if err := s.broker.Publish(ctx, ev); err != nil {
		slog.Warn("vote event not published",
			"broker", s.broker.Name(),
			"question_id", ev.QuestionID,
			"choice_id", ev.ChoiceID,
			"error", err)
	}
}

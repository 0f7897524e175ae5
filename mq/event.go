// Package mq carries vote events from the request path to live subscribers.
//
// A committed vote is announced once through a Broker. Brokers never take
// part in the vote itself; a failed publish only means a browser showing
// results will not refresh until the next vote.
package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TopicVoteEvents is the channel / topic name used by every broker.
const TopicVoteEvents = "poll_vote_events"

var (
	// ErrBrokerClosed is returned by Publish and Subscribe after Close.
	ErrBrokerClosed = errors.New("broker closed")
	// ErrQueueFull is returned by MemoryBroker.Publish when its subscribers
	// are too far behind to accept another event.
	ErrQueueFull = errors.New("broker queue full")
)

// VoteEvent announces one committed vote.
type VoteEvent struct {
	MessageID  string    `json:"message_id"`
	QuestionID uint      `json:"question_id"`
	ChoiceID   uint      `json:"choice_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewVoteEvent stamps a vote with a fresh message id.
func NewVoteEvent(questionID, choiceID uint, at time.Time) VoteEvent {
	return VoteEvent{
		MessageID:  uuid.NewString(),
		QuestionID: questionID,
		ChoiceID:   choiceID,
		Timestamp:  at.UTC(),
	}
}

// Handler consumes a delivered event.
type Handler func(ctx context.Context, ev VoteEvent)

// Broker publishes vote events and fans them out to subscribers.
type Broker interface {
	Publish(ctx context.Context, ev VoteEvent) error
	// Subscribe registers h for every event published after the call returns.
	Subscribe(h Handler) error
	// Name identifies the backing transport in status output.
	Name() string
	Close() error
}

func encodeEvent(ev VoteEvent) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode vote event: %w", err)
	}
	return body, nil
}

func decodeEvent(body []byte) (VoteEvent, error) {
	var ev VoteEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return VoteEvent{}, fmt.Errorf("decode vote event: %w", err)
	}
	if ev.QuestionID == 0 {
		return VoteEvent{}, errors.New("decode vote event: missing question_id")
	}
	return ev, nil
}

// Package lifecycle defines the paper status graph and the transition
// guard enforcing it. The orchestrator consults the guard but the guard
// itself has no knowledge of review stages, so it can be tested alone.
package lifecycle

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/aixiv/backend/pkg/logger"
)

type Status string

const (
	StatusSubmitted      Status = "submitted"
	StatusUnderReview    Status = "under_review"
	StatusRevision       Status = "revision"
	StatusReReview       Status = "re_review"
	StatusAccepted       Status = "accepted"
	StatusPublishedArena Status = "published_arena"
	StatusRejected       Status = "rejected"
)

// Statuses lists every lifecycle state in declaration order.
var Statuses = []Status{
	StatusSubmitted,
	StatusUnderReview,
	StatusRevision,
	StatusReReview,
	StatusAccepted,
	StatusPublishedArena,
	StatusRejected,
}

// ValidTransitions is the full edge set. published_arena is terminal;
// rejected papers may re-enter through revision.
var ValidTransitions = map[Status][]Status{
	StatusSubmitted:      {StatusUnderReview},
	StatusUnderReview:    {StatusRevision, StatusAccepted, StatusRejected},
	StatusRevision:       {StatusReReview},
	StatusReReview:       {StatusRevision, StatusAccepted, StatusRejected},
	StatusAccepted:       {StatusPublishedArena},
	StatusPublishedArena: {},
	StatusRejected:       {StatusRevision},
}

var ErrInvalidTransition = errors.New("invalid status transition")

func IsValid(s Status) bool {
	_, ok := ValidTransitions[s]
	return ok
}

// CanTransition reports whether the edge from -> to is declared.
func CanTransition(from, to Status) bool {
	for _, allowed := range ValidTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Store is the minimal persistence surface the guard needs.
type Store interface {
	GetPaperStatus(paperID string) (string, error)
	UpdatePaperStatus(paperID, status string) error
}

type Machine struct {
	store Store
}

func NewMachine(store Store) *Machine {
	return &Machine{store: store}
}

// Transition moves the paper to newStatus if the edge is declared,
// persisting status and updated_at atomically. It fails with the store's
// not-found error for unknown papers and ErrInvalidTransition for
// undeclared edges.
func (m *Machine) Transition(paperID string, newStatus Status) (Status, error) {
	current, err := m.store.GetPaperStatus(paperID)
	if err != nil {
		return "", err
	}

	if !CanTransition(Status(current), newStatus) {
		return "", fmt.Errorf("%s -> %s: %w", current, newStatus, ErrInvalidTransition)
	}

	if err := m.store.UpdatePaperStatus(paperID, string(newStatus)); err != nil {
		return "", err
	}

	logger.Info("Paper transitioned",
		zap.String("paper_id", paperID),
		zap.String("from", current),
		zap.String("to", string(newStatus)),
	)

	return newStatus, nil
}

package itinerary

import (
	"context"
	"fmt"
	"sync"

	"druktour/internal/models"
)

type SubmissionState int

const (
	SubmissionInFlight SubmissionState = iota
	SubmissionSucceeded
	SubmissionFailed
)

func (s SubmissionState) String() string {
	switch s {
	case SubmissionInFlight:
		return "in_flight"
	case SubmissionSucceeded:
		return "succeeded"
	case SubmissionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Submission is the pending result of a submit-for-approval call.
type Submission struct {
	bookingID string
	summary   string
	days      []models.ItineraryDay

	done chan struct{}

	mu    sync.Mutex
	state SubmissionState
	err   error
}

func newSubmission(bookingID, summary string, days []models.ItineraryDay) *Submission {
	return &Submission{
		bookingID: bookingID,
		summary:   summary,
		days:      days,
		done:      make(chan struct{}),
		state:     SubmissionInFlight,
	}
}

// run calls the collaborator on its own goroutine; a panic there settles the
// submission as failed.
func (s *Submission) run(ctx context.Context, submitter Submitter) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSubmitterPanic, r)
		}
		s.finish(err)
	}()
	err = submitter.SubmitForApproval(ctx, s.bookingID, models.CloneDays(s.days), s.summary)
}

func (s *Submission) finish(err error) {
	s.mu.Lock()
	if err != nil {
		s.state = SubmissionFailed
		s.err = err
	} else {
		s.state = SubmissionSucceeded
	}
	s.mu.Unlock()
	close(s.done)
}

func (s *Submission) State() SubmissionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err is the collaborator's error once the submission failed.
func (s *Submission) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed when the submission settles.
func (s *Submission) Done() <-chan struct{} { return s.done }

// Summary is the text handed to the collaborator.
func (s *Submission) Summary() string { return s.summary }

// Wait blocks until the submission settles or ctx ends.
func (s *Submission) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

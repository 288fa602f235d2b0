package client

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"flashgen/internal/models"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollTimeout  = 2 * time.Minute
)

var (
	ErrPollTimeout      = errors.New("timed out waiting for generated flashcards")
	ErrGenerationFailed = errors.New("flashcard generation failed")
)

type PollOptions struct {
	Interval time.Duration
	Timeout  time.Duration
	// OnTick is called after every empty poll with the attempt number.
	OnTick func(attempt int)
}

// PollCandidates lists the request's candidates until at least one exists.
// An empty list is followed by a status read so that a failed request stops
// the loop instead of running into the timeout.
func (c *Client) PollCandidates(ctx context.Context, requestID uuid.UUID, opts PollOptions) ([]models.AICandidate, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultPollTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		candidates, err := c.ListCandidates(ctx, requestID)
		if err != nil {
			return nil, pollError(ctx, err)
		}
		if len(candidates) > 0 {
			return candidates, nil
		}

		req, err := c.GetGenerationRequest(ctx, requestID)
		if err != nil {
			return nil, pollError(ctx, err)
		}
		if req.Status == models.GenerationFailed {
			return nil, ErrGenerationFailed
		}
		if opts.OnTick != nil {
			opts.OnTick(attempt)
		}

		select {
		case <-ctx.Done():
			return nil, pollError(ctx, ctx.Err())
		case <-ticker.C:
		}
	}
}

func pollError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrPollTimeout
	}
	return err
}

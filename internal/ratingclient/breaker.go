package ratingclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/Clark-Hu/bookrate/internal/domain"
)

// BreakerOptions configures BreakerClient.
type BreakerOptions struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
	Logger      zerolog.Logger
}

// BreakerClient fails fast while the Rating Service keeps failing. Only
// transport errors and 5xx responses count against it; a rejected CSRF
// token or rating says nothing about upstream health.
type BreakerClient struct {
	next Client
	cb   *gobreaker.CircuitBreaker[any]
}

// NewBreakerClient wraps next with a circuit breaker.
func NewBreakerClient(next Client, opts BreakerOptions) *BreakerClient {
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 5
	}
	logger := opts.Logger
	settings := gobreaker.Settings{
		Name:        "rating-service",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.FailureThreshold
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}
	return &BreakerClient{next: next, cb: gobreaker.NewCircuitBreaker[any](settings)}
}

// State returns the breaker state for diagnostics.
func (b *BreakerClient) State() string {
	return b.cb.State().String()
}

// Rate implements Client.
func (b *BreakerClient) Rate(ctx context.Context, book domain.BookID, rating int) (domain.Ack, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.next.Rate(ctx, book, rating)
	})
	if err != nil {
		return domain.Ack{}, classify(err)
	}
	return res.(domain.Ack), nil
}

// Remove implements Client.
func (b *BreakerClient) Remove(ctx context.Context, book domain.BookID) (domain.Ack, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.next.Remove(ctx, book)
	})
	if err != nil {
		return domain.Ack{}, classify(err)
	}
	return res.(domain.Ack), nil
}

// Search implements Client.
func (b *BreakerClient) Search(ctx context.Context, query string) (string, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.next.Search(ctx, query)
	})
	if err != nil {
		return "", classify(err)
	}
	return res.(string), nil
}

func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var status *StatusError
	return errors.As(err, &status) && status.StatusCode < 500
}

func classify(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	return err
}

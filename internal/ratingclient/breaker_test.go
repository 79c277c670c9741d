package ratingclient

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/Clark-Hu/bookrate/internal/domain"
)

type scriptedClient struct {
	calls int
	err   error
}

func (s *scriptedClient) Rate(ctx context.Context, book domain.BookID, rating int) (domain.Ack, error) {
	s.calls++
	if s.err != nil {
		return domain.Ack{}, s.err
	}
	return domain.Ack{Message: fmt.Sprintf("rated %s %d", book, rating), Status: 200}, nil
}

func (s *scriptedClient) Remove(ctx context.Context, book domain.BookID) (domain.Ack, error) {
	s.calls++
	return domain.Ack{}, s.err
}

func (s *scriptedClient) Search(ctx context.Context, query string) (string, error) {
	s.calls++
	return "<p>" + query + "</p>", s.err
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	next := &scriptedClient{err: &StatusError{Op: "rate", StatusCode: 503}}
	b := NewBreakerClient(next, BreakerOptions{FailureThreshold: 2, OpenTimeout: time.Minute, Logger: zerolog.Nop()})

	for i := 0; i < 2; i++ {
		if _, err := b.Rate(context.Background(), "1", 1); !errors.Is(err, ErrRequestFailed) {
			t.Fatalf("call %d: err = %v", i, err)
		}
	}
	if b.State() != gobreaker.StateOpen.String() {
		t.Fatalf("state = %s, want open", b.State())
	}

	_, err := b.Remove(context.Background(), "1")
	if !errors.Is(err, ErrRequestFailed) || !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("open breaker err = %v", err)
	}
	if next.calls != 2 {
		t.Fatalf("upstream calls = %d, want 2", next.calls)
	}
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	next := &scriptedClient{err: &StatusError{Op: "rate", StatusCode: 403}}
	b := NewBreakerClient(next, BreakerOptions{FailureThreshold: 1, OpenTimeout: time.Minute, Logger: zerolog.Nop()})

	for i := 0; i < 3; i++ {
		if _, err := b.Rate(context.Background(), "1", 1); !errors.Is(err, ErrRequestFailed) {
			t.Fatalf("err = %v", err)
		}
	}
	if b.State() != gobreaker.StateClosed.String() {
		t.Fatalf("state = %s, want closed", b.State())
	}
}

func TestBreakerPassesThrough(t *testing.T) {
	b := NewBreakerClient(&scriptedClient{}, BreakerOptions{OpenTimeout: time.Minute, Logger: zerolog.Nop()})
	ack, err := b.Rate(context.Background(), "9", 5)
	if err != nil || ack.Message != "rated 9 5" {
		t.Fatalf("ack = %+v, err = %v", ack, err)
	}
	body, err := b.Search(context.Background(), "dune")
	if err != nil || body != "<p>dune</p>" {
		t.Fatalf("body = %q, err = %v", body, err)
	}
}

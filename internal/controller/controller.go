// Package controller binds the rating state machine to a page document and
// the Rating Service.
//
// All page mutations happen on a single loop goroutine, the equivalent of
// the browser's UI thread. Gestures run on the loop synchronously and return
// once the optimistic update is applied; network calls run on their own
// goroutines and post their completions back to the loop.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Clark-Hu/bookrate/internal/domain"
	"github.com/Clark-Hu/bookrate/internal/page"
	"github.com/Clark-Hu/bookrate/internal/ratingclient"
	"github.com/Clark-Hu/bookrate/internal/widget"
)

var (
	// ErrUnknownBook is returned for gestures on a book without a widget.
	ErrUnknownBook = errors.New("controller: no rating widget for book")
	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("controller: closed")
)

const taskQueueSize = 64

// Options configures a Controller.
type Options struct {
	Variant widget.Variant
	// InitialRating is the raw page-embedded rating of the detail page.
	InitialRating     string
	RollbackOnFailure bool
	Logger            zerolog.Logger
}

// Controller keeps the stars and delete icons of a page consistent with
// the Rating Service.
type Controller struct {
	doc    *page.Document
	client ratingclient.Client
	opts   Options
	logger zerolog.Logger

	// owned by the loop goroutine
	widgets   map[domain.BookID]widget.State
	searchSeq uint64
	pending   int
	idle      []chan struct{}
	closing   bool

	ctx      context.Context
	cancel   context.CancelFunc
	tasks    chan func()
	stopped  chan struct{}
	stopOnce sync.Once
	// inflight tracks request goroutines; Add only happens on the loop and
	// never after closing is set.
	inflight sync.WaitGroup
}

// New starts a controller over doc and initializes every widget on it.
func New(doc *page.Document, client ratingclient.Client, opts Options) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		doc:     doc,
		client:  client,
		opts:    opts,
		logger:  opts.Logger.With().Str("component", "controller").Str("variant", opts.Variant.String()).Logger(),
		widgets: make(map[domain.BookID]widget.State),
		ctx:     ctx,
		cancel:  cancel,
		tasks:   make(chan func(), taskQueueSize),
		stopped: make(chan struct{}),
	}
	go c.run()
	_ = c.Initialize(opts.InitialRating)
	return c
}

func (c *Controller) run() {
	for {
		select {
		case fn := <-c.tasks:
			fn()
		case <-c.stopped:
			return
		}
	}
}

// do runs fn on the loop and waits for it.
func (c *Controller) do(fn func()) error {
	done := make(chan struct{})
	task := func() {
		defer close(done)
		fn()
	}
	select {
	case c.tasks <- task:
	case <-c.stopped:
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-c.stopped:
		return ErrClosed
	}
}

// post queues fn on the loop without waiting.
func (c *Controller) post(fn func()) {
	select {
	case c.tasks <- fn:
	case <-c.stopped:
	}
}

// Initialize (re)builds widget state from the page. On the detail page the
// raw rating is parsed leniently and rendered; on the profile page each
// widget keeps the rating the server rendered into its stars.
func (c *Controller) Initialize(initialRatingRaw string) error {
	return c.do(func() {
		initial := widget.ParseInitialRating(initialRatingRaw)
		for _, book := range c.doc.BookIDs() {
			stars := c.doc.StarCount(book)
			var st widget.State
			if c.opts.Variant == widget.Profile {
				st = widget.New(book, widget.Profile, stars, c.doc.FilledPrefix(book))
			} else {
				st = widget.New(book, widget.Detail, stars, initial)
				c.doc.RenderStars(book, st.Rating)
				c.doc.SetAffordanceVisible(book, st.AffordanceVisible)
			}
			c.widgets[book] = st
			c.logger.Debug().Str("book", book.String()).Int("rating", st.Rating).Int("stars", st.Stars).Msg("widget initialized")
		}
	})
}

// ClickStar handles a click on the star carrying ordinal. The stars are
// updated before ClickStar returns; the rate request completes later.
func (c *Controller) ClickStar(book domain.BookID, ordinal int) error {
	var gestureErr error
	err := c.do(func() {
		gestureErr = c.gesture(book, widget.Event{Kind: widget.StarClicked, Index: ordinal})
	})
	if err != nil {
		return err
	}
	return gestureErr
}

// ClickDelete handles a click on book's delete icon.
func (c *Controller) ClickDelete(book domain.BookID) error {
	var gestureErr error
	err := c.do(func() {
		gestureErr = c.gesture(book, widget.Event{Kind: widget.DeleteClicked})
	})
	if err != nil {
		return err
	}
	return gestureErr
}

// State returns the current state of book's widget.
func (c *Controller) State(book domain.BookID) (widget.State, bool) {
	var (
		st widget.State
		ok bool
	)
	_ = c.do(func() {
		st, ok = c.widgets[book]
	})
	return st, ok
}

// Inspect runs fn against the page on the loop. fn must not retain doc.
func (c *Controller) Inspect(fn func(doc *page.Document)) error {
	return c.do(func() { fn(c.doc) })
}

// Render writes the current page markup to w.
func (c *Controller) Render(w io.Writer) error {
	var renderErr error
	if err := c.do(func() { renderErr = c.doc.Render(w) }); err != nil {
		return err
	}
	return renderErr
}

// Settle blocks until no request is in flight and every completion has been
// applied to the page. It is safe to call while other goroutines keep
// gesturing; requests they issue before Settle observes an idle controller
// extend the wait.
func (c *Controller) Settle() {
	done := make(chan struct{})
	err := c.do(func() {
		if c.pending == 0 {
			close(done)
			return
		}
		c.idle = append(c.idle, done)
	})
	if err != nil {
		return
	}
	select {
	case <-done:
	case <-c.stopped:
	}
}

// Close cancels in-flight requests and stops the loop. Gestures after Close
// return ErrClosed.
func (c *Controller) Close() {
	c.stopOnce.Do(func() {
		_ = c.do(func() { c.closing = true })
		c.cancel()
		c.inflight.Wait()
		close(c.stopped)
	})
}

// async runs call on its own goroutine and applies the completion it returns
// on the loop. It runs on the loop.
func (c *Controller) async(call func() func()) {
	c.pending++
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		apply := call()
		c.post(func() {
			apply()
			c.pending--
			if c.pending == 0 {
				for _, ch := range c.idle {
					close(ch)
				}
				c.idle = nil
			}
		})
	}()
}

// gesture runs on the loop.
func (c *Controller) gesture(book domain.BookID, ev widget.Event) error {
	if c.closing {
		return ErrClosed
	}
	st, ok := c.widgets[book]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBook, book)
	}
	next, eff, err := widget.Transition(st, ev, c.transitionOptions())
	if err != nil {
		return err
	}
	c.commit(st, next)
	if eff.Request != nil {
		c.dispatch(*eff.Request)
	}
	return nil
}

func (c *Controller) dispatch(req widget.Request) {
	c.async(func() func() {
		var (
			ack domain.Ack
			err error
		)
		switch req.Kind {
		case widget.RequestRate:
			ack, err = c.client.Rate(c.ctx, req.Book, req.Rating)
		case widget.RequestRemove:
			ack, err = c.client.Remove(c.ctx, req.Book)
		}
		return func() { c.complete(req, ack, err) }
	})
}

// complete runs on the loop.
func (c *Controller) complete(req widget.Request, ack domain.Ack, reqErr error) {
	logger := c.logger.With().
		Str("book", req.Book.String()).
		Str("request", req.Kind.String()).
		Uint64("seq", req.Seq).
		Logger()

	ev := widget.Event{Index: req.Rating, Seq: req.Seq}
	switch {
	case req.Kind == widget.RequestRate && reqErr == nil:
		ev.Kind = widget.RateSucceeded
		logger.Info().Int("rating", req.Rating).Str("ack", ack.Message).Msg("rating saved")
	case req.Kind == widget.RequestRate:
		ev.Kind = widget.RateFailed
		logger.Error().Err(reqErr).Int("rating", req.Rating).Msg("rating request failed")
	case reqErr == nil:
		ev.Kind = widget.RemoveSucceeded
		logger.Info().Str("ack", ack.Message).Msg("rating removed")
	default:
		ev.Kind = widget.RemoveFailed
		logger.Error().Err(reqErr).Msg("remove request failed")
	}

	st, ok := c.widgets[req.Book]
	if !ok {
		return
	}
	next, eff, err := widget.Transition(st, ev, c.transitionOptions())
	if err != nil {
		logger.Error().Err(err).Msg("apply completion")
		return
	}
	if eff.Stale {
		logger.Debug().Uint64("latest_seq", st.Seq).Int("acked", next.Acked).Msg("superseded completion")
	}
	c.commit(st, next)
}

// commit stores next and patches the page to match it.
func (c *Controller) commit(prev, next widget.State) {
	book := next.Book
	c.widgets[book] = next

	if next.Removed && !prev.Removed {
		if !c.doc.RemoveEntry(book) {
			c.logger.Warn().Str("book", book.String()).Msg("profile entry not found")
		}
		return
	}
	if next.Rating != prev.Rating {
		c.doc.RenderStars(book, next.Rating)
	}
	if next.Variant == widget.Detail && next.AffordanceVisible != prev.AffordanceVisible {
		c.doc.SetAffordanceVisible(book, next.AffordanceVisible)
	}
}

func (c *Controller) transitionOptions() widget.Options {
	return widget.Options{RollbackOnFailure: c.opts.RollbackOnFailure}
}

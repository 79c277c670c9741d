package controller

import "errors"

// ErrNoSearchForm is returned when the page carries no search form, in which
// case nothing intercepts the submission.
var ErrNoSearchForm = errors.New("controller: page has no search form")

// SubmitSearch types query into the search input and submits the form.
func (c *Controller) SubmitSearch(query string) (bool, error) {
	var (
		prevented bool
		submitErr error
	)
	err := c.do(func() {
		if c.closing {
			submitErr = ErrClosed
			return
		}
		if !c.doc.HasSearchForm() {
			submitErr = ErrNoSearchForm
			return
		}
		c.doc.SetSearchQuery(query)
		prevented = c.submitSearch()
	})
	if err != nil {
		return false, err
	}
	return prevented, submitErr
}

// SubmitSearchForm submits the search form with whatever the input holds.
// The default navigation is always suppressed, which the boolean reports.
func (c *Controller) SubmitSearchForm() (bool, error) {
	var (
		prevented bool
		submitErr error
	)
	err := c.do(func() {
		if c.closing {
			submitErr = ErrClosed
			return
		}
		if !c.doc.HasSearchForm() {
			submitErr = ErrNoSearchForm
			return
		}
		prevented = c.submitSearch()
	})
	if err != nil {
		return false, err
	}
	return prevented, submitErr
}

// submitSearch runs on the loop.
func (c *Controller) submitSearch() bool {
	c.searchSeq++
	seq := c.searchSeq
	query := c.doc.SearchQuery()

	c.async(func() func() {
		body, err := c.client.Search(c.ctx, query)
		return func() { c.completeSearch(seq, query, body, err) }
	})
	return true
}

// completeSearch runs on the loop.
func (c *Controller) completeSearch(seq uint64, query, body string, err error) {
	logger := c.logger.With().Str("request", "search").Str("query", query).Uint64("seq", seq).Logger()
	if err != nil {
		logger.Error().Err(err).Msg("search request failed")
		return
	}
	if seq != c.searchSeq {
		logger.Debug().Uint64("latest_seq", c.searchSeq).Msg("ignoring superseded search results")
		return
	}
	if !c.doc.SetSearchResults(body) {
		logger.Warn().Msg("search results container not found")
		return
	}
	logger.Debug().Int("bytes", len(body)).Msg("search results replaced")
}

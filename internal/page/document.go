// Package page wraps a server-rendered HTML page and exposes the handful of
// elements the rating widgets and the search box work with.
//
// A Document is not safe for concurrent use; the controller confines it to
// its UI loop.
package page

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/Clark-Hu/bookrate/internal/domain"
)

const (
	filledClass = "fas"
	emptyClass  = "far"

	entryIDPrefix = "book-entry-"
)

// Document is a parsed page.
type Document struct {
	doc *goquery.Document
}

// Parse reads a page from r.
func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return &Document{doc: doc}, nil
}

// ParseString is Parse over an in-memory page.
func ParseString(markup string) (*Document, error) {
	return Parse(strings.NewReader(markup))
}

// CSRFToken returns the content of the csrf-token meta tag.
func (d *Document) CSRFToken() string {
	token, _ := d.doc.Find(`meta[name="csrf-token"]`).First().Attr("content")
	return strings.TrimSpace(token)
}

// BookIDs lists the rating widgets on the page in document order.
func (d *Document) BookIDs() []domain.BookID {
	var ids []domain.BookID
	d.doc.Find(".rating").Each(func(_ int, s *goquery.Selection) {
		id, ok := s.Attr("id")
		if !ok || strings.TrimSpace(id) == "" {
			return
		}
		if s.Find(".rating-stars .star").Length() == 0 {
			return
		}
		ids = append(ids, domain.BookID(id))
	})
	return ids
}

// HasWidget reports whether a rating widget exists for book.
func (d *Document) HasWidget(book domain.BookID) bool {
	return d.widget(book).Length() > 0
}

// StarCount returns the number of stars rendered for book.
func (d *Document) StarCount(book domain.BookID) int {
	return d.stars(book).Length()
}

// FilledPrefix returns the number of leading filled stars, i.e. the rating
// the server rendered into the markup.
func (d *Document) FilledPrefix(book domain.BookID) int {
	n := 0
	d.stars(book).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !s.HasClass(filledClass) {
			return false
		}
		n++
		return true
	})
	return n
}

// Filled returns the fill state of every star of book in order.
func (d *Document) Filled(book domain.BookID) []bool {
	stars := d.stars(book)
	mask := make([]bool, stars.Length())
	stars.Each(func(i int, s *goquery.Selection) {
		mask[i] = s.HasClass(filledClass)
	})
	return mask
}

// StarOrdinal returns the rating value carried by the i-th star (0-based
// position). The data-index attribute wins; position+1 is the fallback.
func (d *Document) StarOrdinal(book domain.BookID, position int) int {
	return starOrdinal(d.stars(book).Eq(position), position)
}

// RenderStars fills the stars whose ordinal is <= rating and empties the rest.
func (d *Document) RenderStars(book domain.BookID, rating int) {
	d.stars(book).Each(func(i int, s *goquery.Selection) {
		if starOrdinal(s, i) <= rating {
			s.RemoveClass(emptyClass).AddClass(filledClass)
			return
		}
		s.RemoveClass(filledClass).AddClass(emptyClass)
	})
}

// AffordanceVisible reports whether book's delete icon is displayed.
func (d *Document) AffordanceVisible(book domain.BookID) bool {
	icon := d.affordance(book)
	if icon.Length() == 0 {
		return false
	}
	style, _ := icon.Attr("style")
	return !hiddenStyle(style)
}

// SetAffordanceVisible shows or hides book's delete icon the way jQuery's
// show/hide do, through an inline display declaration.
func (d *Document) SetAffordanceVisible(book domain.BookID, visible bool) {
	d.affordance(book).Each(func(_ int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		style = stripDisplay(style)
		if !visible {
			style = strings.TrimSpace(style + " display: none;")
		}
		if style == "" {
			s.RemoveAttr("style")
			return
		}
		s.SetAttr("style", style)
	})
}

// HasEntry reports whether the profile list still contains book's entry.
func (d *Document) HasEntry(book domain.BookID) bool {
	return d.byID(entryIDPrefix+string(book)).Length() > 0
}

// RemoveEntry deletes book's profile list entry. It reports whether an entry
// was found.
func (d *Document) RemoveEntry(book domain.BookID) bool {
	entry := d.byID(entryIDPrefix + string(book))
	if entry.Length() == 0 {
		return false
	}
	entry.Remove()
	return true
}

// HasSearchForm reports whether the page carries the search form.
func (d *Document) HasSearchForm() bool {
	return d.doc.Find("#search-form").Length() > 0
}

// SearchQuery returns the value of the search input.
func (d *Document) SearchQuery() string {
	val, _ := d.doc.Find("#search-input").First().Attr("value")
	return val
}

// SetSearchQuery stores q as the search input's value.
func (d *Document) SetSearchQuery(q string) {
	d.doc.Find("#search-input").First().SetAttr("value", q)
}

// SearchResults returns the inner markup of the results container.
func (d *Document) SearchResults() (string, error) {
	return d.doc.Find("#search-results").First().Html()
}

// SetSearchResults replaces the inner markup of the results container with
// markup, verbatim. It reports whether the container exists.
func (d *Document) SetSearchResults(markup string) bool {
	container := d.doc.Find("#search-results").First()
	if container.Length() == 0 {
		return false
	}
	container.SetHtml(markup)
	return true
}

var scriptAssign = regexp.MustCompile(`(?m)\b(?:var\s+|let\s+|const\s+)?(\w+)\s*=\s*(?:"([^"]*)"|'([^']*)'|([^;\s]+))\s*;?`)

// ScriptValue returns the value assigned to a page global in an inline
// script, e.g. `var userRating = "3";`.
func (d *Document) ScriptValue(name string) (string, bool) {
	var (
		value string
		found bool
	)
	d.doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if _, external := s.Attr("src"); external {
			return true
		}
		for _, m := range scriptAssign.FindAllStringSubmatch(s.Text(), -1) {
			if m[1] != name {
				continue
			}
			value = m[2] + m[3] + m[4]
			found = true
			return false
		}
		return true
	})
	return value, found
}

// Render writes the current page markup to w.
func (d *Document) Render(w io.Writer) error {
	for _, n := range d.doc.Nodes {
		if err := html.Render(w, n); err != nil {
			return fmt.Errorf("render page: %w", err)
		}
	}
	return nil
}

// String returns the current page markup.
func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

func (d *Document) widget(book domain.BookID) *goquery.Selection {
	return d.doc.Find(".rating").FilterFunction(func(_ int, s *goquery.Selection) bool {
		id, _ := s.Attr("id")
		return id == string(book)
	}).First()
}

func (d *Document) stars(book domain.BookID) *goquery.Selection {
	return d.widget(book).Find(".rating-stars .star")
}

func (d *Document) affordance(book domain.BookID) *goquery.Selection {
	return d.widget(book).Find(".bin-icon")
}

func (d *Document) byID(id string) *goquery.Selection {
	return d.doc.Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("id")
		return v == id
	}).First()
}

func starOrdinal(star *goquery.Selection, position int) int {
	if raw, ok := star.Attr("data-index"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			return n
		}
	}
	return position + 1
}

func stripDisplay(style string) string {
	var kept []string
	for _, decl := range strings.Split(style, ";") {
		decl = strings.TrimSpace(decl)
		if decl == "" {
			continue
		}
		prop, _, _ := strings.Cut(decl, ":")
		if strings.EqualFold(strings.TrimSpace(prop), "display") {
			continue
		}
		kept = append(kept, decl+";")
	}
	return strings.Join(kept, " ")
}

func hiddenStyle(style string) bool {
	for _, decl := range strings.Split(style, ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(prop), "display") &&
			strings.EqualFold(strings.TrimSpace(val), "none") {
			return true
		}
	}
	return false
}

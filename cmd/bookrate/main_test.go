package main

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Clark-Hu/bookrate/internal/config"
	"github.com/Clark-Hu/bookrate/internal/mockservice"
	"github.com/Clark-Hu/bookrate/internal/page"
	"github.com/Clark-Hu/bookrate/internal/widget"
)

func TestParseSteps(t *testing.T) {
	got, err := parseSteps([]string{"rate", "1", "4", "search", "dune messiah", "clear", "1"})
	if err != nil {
		t.Fatalf("parseSteps: %v", err)
	}
	want := []step{
		{kind: stepRate, book: "1", stars: 4},
		{kind: stepSearch, query: "dune messiah"},
		{kind: stepClear, book: "1"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("steps = %+v, want %+v", got, want)
	}
}

func TestParseSteps_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown verb", []string{"star", "1"}},
		{"rate missing stars", []string{"rate", "1"}},
		{"rate non numeric", []string{"rate", "1", "four"}},
		{"clear missing book", []string{"clear"}},
		{"blank book", []string{"clear", "  "}},
		{"search missing query", []string{"search"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseSteps(tt.args); err == nil {
				t.Fatalf("parseSteps(%q) succeeded", tt.args)
			}
		})
	}
}

func TestApplyPageGlobals(t *testing.T) {
	doc, err := page.ParseString(`<html><head><meta name="csrf-token" content="page-token">` +
		`<script>var userRating = "3"; var searchUrl = "/find/";</script></head><body></body></html>`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	cfg := config.Default()
	applyPageGlobals(&cfg, doc)
	if cfg.CSRFToken != "page-token" || cfg.InitialRating != "3" || cfg.SearchEndpoint != "/find/" {
		t.Fatalf("cfg = %+v", cfg)
	}

	cfg = config.Default()
	cfg.CSRFToken = "configured"
	cfg.InitialRating = "5"
	cfg.SearchEndpoint = "/custom/"
	applyPageGlobals(&cfg, doc)
	if cfg.CSRFToken != "configured" || cfg.InitialRating != "5" || cfg.SearchEndpoint != "/custom/" {
		t.Fatalf("explicit settings overridden: %+v", cfg)
	}
}

func TestRunAgainstMockService(t *testing.T) {
	cfg := config.Default()
	st := mockservice.NewStore(mockservice.DefaultCatalogue())
	srv := httptest.NewServer(mockservice.New(cfg.Mock, st, zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL

	steps, err := parseSteps([]string{"rate", "5", "2", "search", "gibson"})
	if err != nil {
		t.Fatalf("parseSteps: %v", err)
	}
	out := filepath.Join(t.TempDir(), "page.html")
	if err := run(context.Background(), cfg, widget.Detail, "", "/application/book-detail/5/", out, steps, zerolog.Nop()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := st.Rating(5); got != 2 {
		t.Fatalf("stored rating = %d, want 2", got)
	}
	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	doc, err := page.ParseString(string(raw))
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if doc.FilledPrefix("5") != 2 || !doc.AffordanceVisible("5") {
		t.Fatalf("rendered widget: filled=%d", doc.FilledPrefix("5"))
	}
	results, _ := doc.SearchResults()
	if !strings.Contains(results, "Neuromancer") {
		t.Fatalf("search results = %q", results)
	}
}

func TestRunRequiresPageSource(t *testing.T) {
	err := run(context.Background(), config.Default(), widget.Detail, "", "", "-", nil, zerolog.Nop())
	if err == nil || !strings.Contains(err.Error(), "required") {
		t.Fatalf("err = %v", err)
	}
}

// Command bookrate loads a book page, replays rating gestures against the
// Rating Service and prints the page as the browser would now show it.
//
//	bookrate -url /application/book-detail/1/ rate 1 4 search dune
//	bookrate -page profile.html -variant profile clear 7
package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/Clark-Hu/bookrate/internal/config"
	"github.com/Clark-Hu/bookrate/internal/controller"
	"github.com/Clark-Hu/bookrate/internal/logging"
	"github.com/Clark-Hu/bookrate/internal/page"
	"github.com/Clark-Hu/bookrate/internal/ratingclient"
	"github.com/Clark-Hu/bookrate/internal/widget"
)

func main() {
	var (
		pageFile = flag.String("page", "", "read the page from this file")
		pageURL  = flag.String("url", "", "fetch the page from this path or URL on the site")
		variant  = flag.String("variant", "", "detail or profile (overrides variant)")
		out      = flag.String("out", "-", "write the patched page here")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [rate <book> <stars> | clear <book> | search <query>]...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fallback := logging.New(logging.Config{})
		fallback.Fatal().Err(err).Msg("config error")
	}
	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if *variant != "" {
		cfg.Variant = *variant
	}
	v, err := widget.ParseVariant(cfg.Variant)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid variant")
	}

	steps, err := parseSteps(flag.Args())
	if err != nil {
		flag.Usage()
		logger.Fatal().Err(err).Msg("invalid gestures")
	}

	if err := run(ctx, cfg, v, *pageFile, *pageURL, *out, steps, logger); err != nil {
		logger.Fatal().Err(err).Msg("bookrate failed")
	}
}

func run(ctx context.Context, cfg config.Config, variant widget.Variant, pageFile, pageURL, out string, steps []step, logger zerolog.Logger) error {
	httpClient, err := ratingclient.NewHTTPClient(ratingclient.OptionsFromConfig(cfg, logging.Component(logger, "ratingclient")))
	if err != nil {
		return err
	}

	doc, err := loadPage(ctx, httpClient, pageFile, pageURL)
	if err != nil {
		return err
	}
	applyPageGlobals(&cfg, doc)
	httpClient.SetCSRFToken(cfg.CSRFToken)
	httpClient.SetSearchEndpoint(cfg.SearchEndpoint)
	if cfg.CSRFToken == "" {
		logger.Warn().Msg("no csrf token configured or found on the page")
	}

	var client ratingclient.Client = httpClient
	if cfg.Breaker.Enabled {
		client = ratingclient.NewBreakerClient(httpClient, ratingclient.BreakerOptions{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			OpenTimeout:      cfg.Breaker.OpenTimeout,
			Logger:           logging.Component(logger, "breaker"),
		})
	}

	c := controller.New(doc, client, controller.Options{
		Variant:           variant,
		InitialRating:     cfg.InitialRating,
		RollbackOnFailure: cfg.RollbackOnFailure,
		Logger:            logger,
	})
	defer c.Close()

	for _, s := range steps {
		if err := s.apply(c); err != nil {
			return fmt.Errorf("%s: %w", s, err)
		}
		// Each gesture is answered before the next, like a user waiting on
		// the page between clicks.
		c.Settle()
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	c.Settle()

	return writePage(c, out)
}

func loadPage(ctx context.Context, client *ratingclient.HTTPClient, pageFile, pageURL string) (*page.Document, error) {
	switch {
	case pageFile != "" && pageURL != "":
		return nil, fmt.Errorf("-page and -url are mutually exclusive")
	case pageFile != "":
		f, err := os.Open(pageFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return page.Parse(bufio.NewReader(f))
	case pageURL != "":
		body, err := client.GetPage(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("fetch page: %w", err)
		}
		return page.Parse(bytes.NewReader(body))
	default:
		return nil, fmt.Errorf("one of -page or -url is required")
	}
}

// applyPageGlobals fills settings left unset in cfg from the globals the
// page itself carries.
func applyPageGlobals(cfg *config.Config, doc *page.Document) {
	if cfg.CSRFToken == "" {
		cfg.CSRFToken = doc.CSRFToken()
	}
	if cfg.InitialRating == "" {
		if v, ok := doc.ScriptValue("userRating"); ok {
			cfg.InitialRating = v
		}
	}
	if cfg.SearchEndpoint == config.Default().SearchEndpoint {
		if v, ok := doc.ScriptValue("searchUrl"); ok && v != "" {
			cfg.SearchEndpoint = v
		}
	}
}

func writePage(c *controller.Controller, out string) error {
	var w io.Writer = os.Stdout
	if out != "-" && out != "" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	bw := bufio.NewWriter(w)
	if err := c.Render(bw); err != nil {
		return err
	}
	if _, err := bw.WriteString("\n"); err != nil {
		return err
	}
	return bw.Flush()
}

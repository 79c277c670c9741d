package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	json "github.com/goccy/go-json"

	"github.com/Clark-Hu/bookrate/internal/config"
	"github.com/Clark-Hu/bookrate/internal/logging"
	"github.com/Clark-Hu/bookrate/internal/mockservice"
)

func main() {
	var (
		port = flag.String("port", "", "port to listen on (overrides mock.port)")
		seed = flag.String("seed", "", "optional JSON file of initial ratings, e.g. {\"1\": 4}")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fallback := logging.New(logging.Config{})
		fallback.Fatal().Err(err).Msg("config error")
	}
	logger := logging.Component(logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}), "ratingsvc-mock")

	if *port != "" {
		cfg.Mock.Port = *port
	}

	st := mockservice.NewStore(mockservice.DefaultCatalogue())
	if *seed != "" {
		n, err := loadSeed(st, *seed)
		if err != nil {
			logger.Fatal().Err(err).Str("file", *seed).Msg("load seed ratings")
		}
		logger.Info().Int("ratings", n).Msg("seeded ratings")
	}

	server := mockservice.New(cfg.Mock, st, logger)

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", ":"+cfg.Mock.Port).Msg("mock rating service listening")
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
}

func loadSeed(st *mockservice.Store, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var ratings map[string]int
	if err := json.Unmarshal(raw, &ratings); err != nil {
		return 0, err
	}
	for key, value := range ratings {
		id, err := strconv.Atoi(key)
		if err != nil {
			return 0, fmt.Errorf("seed key %q is not a book id", key)
		}
		if value < 1 || value > 5 {
			return 0, fmt.Errorf("seed rating %d for book %d out of range", value, id)
		}
		if _, _, err := st.Upsert(id, value); err != nil {
			return 0, err
		}
	}
	return len(ratings), nil
}

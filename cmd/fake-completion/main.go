// ABOUTME: Scripted completion service for running chorus end to end without a model.
// ABOUTME: Usage: fake-completion [-addr localhost:9090] [-max-turns 3] [-seed 1]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/2389/chorus/internal/completion"
)

func main() {
	addr := flag.String("addr", "localhost:9090", "HTTP listen address")
	maxTurns := flag.Int("max-turns", 3, "Autonomous replies before answering wait")
	reactEvery := flag.Int("react-every", 3, "React to roughly one in N messages (0 disables)")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "Random seed")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	r := &responder{
		maxTurns:   *maxTurns,
		reactEvery: *reactEvery,
		rng:        rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15)),
	}

	if err := run(*addr, r, logger); err != nil {
		logger.Error("fake-completion failed", "error", err)
		os.Exit(1)
	}
}

func run(addr string, r *responder, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mux := http.NewServeMux()
	mux.Handle("POST /complete", handler(r, logger))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}

// handler decodes a completion request and answers with the responder's actions.
func handler(r *responder, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var creq completion.Request
		if err := json.NewDecoder(req.Body).Decode(&creq); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}

		resp := r.respond(&creq)
		logger.Info("completion",
			"participants", len(creq.Participants),
			"messages", len(creq.Messages),
			"actions", len(resp.Actions))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})
}

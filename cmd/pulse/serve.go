package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/pulse/engine/domain"
	"github.com/WessleyAI/pulse/engine/enrich"
	"github.com/WessleyAI/pulse/engine/store"
	"github.com/WessleyAI/pulse/pkg/metrics"
	"github.com/WessleyAI/pulse/pkg/mid"
)

const maxPageLimit = 500

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored posts and sentiment summaries over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("addr") {
				addr = a.cfg.Serve.Addr
			}
			ctx := cmd.Context()
			b, err := openBackend(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer b.close()

			reg := metrics.New()
			srv := &http.Server{
				Addr:         addr,
				Handler:      newServer(newReader(b.posts, newGate(a.cfg, false)), b.ping, reg, a.log),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  120 * time.Second,
			}
			return listenAndServe(ctx, srv, a.log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

// listenAndServe runs srv until ctx is cancelled, then shuts it down.
func listenAndServe(ctx context.Context, srv *http.Server, log *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func newServer(r *reader, ping func(context.Context) error, reg *metrics.Registry, log *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth(ping))
	mux.HandleFunc("GET /api/posts", handlePosts(r, log))
	mux.HandleFunc("GET /api/posts/{id}", handlePost(r, log))
	mux.HandleFunc("GET /api/summary", handleSummary(r, log))
	mux.Handle("GET /metrics", reg.Handler())

	// Metrics must wrap the mux directly to see the matched pattern.
	return mid.Chain(mux,
		mid.Recover(log),
		mid.OTel("pulse-api"),
		mid.RequestID(),
		mid.Logger(log),
		mid.ReadOnly(),
		mid.Metrics(reg),
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// queryFromRequest reads keyword, source (repeatable or comma separated) and
// limit.
func queryFromRequest(r *http.Request, defaultLimit int) (store.Query, error) {
	q := store.Query{Keyword: r.URL.Query().Get("keyword"), Limit: defaultLimit}
	srcs, err := parseSources(r.URL.Query()["source"])
	if err != nil {
		return q, err
	}
	q.Sources = srcs
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return q, domain.NewValidationError("limit", v, domain.ErrInvalidArgument)
		}
		q.Limit = min(n, maxPageLimit)
	}
	return q, nil
}

func handleHealth(ping func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handlePosts(rd *reader, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := queryFromRequest(r, 50)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		recs, err := rd.list(r.Context(), q)
		if err != nil {
			log.Error("list posts failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if recs == nil {
			recs = []domain.Record{}
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

func handlePost(rd *reader, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := rd.posts.Get(r.Context(), r.PathValue("id"))
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "post not found")
			return
		case err != nil:
			log.Error("get post failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		recs := []domain.Record{rec}
		if _, err := rd.gate.Apply(r.Context(), recs); err != nil {
			log.Error("enrich post failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		rd.labeler.Apply(recs)
		writeJSON(w, http.StatusOK, recs[0])
	}
}

// SummaryResponse is the body of GET /api/summary.
type SummaryResponse struct {
	Keyword  string                          `json:"keyword,omitempty"`
	Overall  enrich.Summary                  `json:"overall"`
	BySource map[domain.Source]enrich.Summary `json:"by_source"`
}

func handleSummary(rd *reader, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := queryFromRequest(r, store.DefaultListLimit)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		recs, err := rd.list(r.Context(), q)
		if err != nil {
			log.Error("summary failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		bySource := make(map[domain.Source][]domain.Record)
		for _, rec := range recs {
			bySource[rec.Source] = append(bySource[rec.Source], rec)
		}
		resp := SummaryResponse{
			Keyword:  q.Keyword,
			Overall:  enrich.Summarize(recs),
			BySource: make(map[domain.Source]enrich.Summary, len(bySource)),
		}
		for src, rs := range bySource {
			resp.BySource[src] = enrich.Summarize(rs)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func serveMetrics(ctx context.Context, addr string, reg *metrics.Registry, a *app) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", reg.Handler())
	return listenAndServe(ctx, &http.Server{Addr: addr, Handler: mux, ReadTimeout: 15 * time.Second}, a.log)
}

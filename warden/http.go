package warden

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/cookiewall/shield"
)

type inspectRequest struct {
	URL     string `json:"url"`
	Decline bool   `json:"decline"`
	Static  bool   `json:"static"`
}

// Handler returns the HTTP API.
func (w *Warden) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	for _, mw := range shield.DefaultAPIStack(w.logger) {
		r.Use(mw)
	}

	r.Get("/health", func(rw http.ResponseWriter, req *http.Request) {
		if err := w.checkRunning(); err != nil {
			writeError(rw, http.StatusServiceUnavailable, err)
			return
		}
		writeJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/inspect", w.handleInspect)
		r.Post("/analyze", w.handleAnalyze)

		r.Get("/analyses", func(rw http.ResponseWriter, req *http.Request) {
			list, err := w.History(req.Context(), queryInt(req, "limit", 50))
			if err != nil {
				writeError(rw, http.StatusInternalServerError, err)
				return
			}
			writeJSON(rw, http.StatusOK, list)
		})
		r.Get("/analyses/{domain}", func(rw http.ResponseWriter, req *http.Request) {
			pa, err := w.Analysis(req.Context(), chi.URLParam(req, "domain"))
			if err != nil {
				writeError(rw, http.StatusInternalServerError, err)
				return
			}
			if pa == nil {
				writeError(rw, http.StatusNotFound, errors.New("no analysis for domain"))
				return
			}
			writeJSON(rw, http.StatusOK, pa)
		})

		r.Get("/settings", func(rw http.ResponseWriter, req *http.Request) {
			writeJSON(rw, http.StatusOK, w.Settings(req.Context()))
		})
		r.Put("/settings", func(rw http.ResponseWriter, req *http.Request) {
			// Keys missing from the body keep their current values.
			s := w.Settings(req.Context())
			if err := json.NewDecoder(req.Body).Decode(&s); err != nil {
				writeError(rw, http.StatusBadRequest, fmt.Errorf("decode settings: %w", err))
				return
			}
			saved, err := w.UpdateSettings(req.Context(), s)
			if errors.Is(err, ErrInvalidSettings) {
				writeError(rw, http.StatusBadRequest, err)
				return
			}
			if err != nil {
				writeError(rw, http.StatusInternalServerError, err)
				return
			}
			writeJSON(rw, http.StatusOK, saved)
		})

		r.Get("/export", func(rw http.ResponseWriter, req *http.Request) {
			exp, err := w.Export(req.Context())
			if err != nil {
				writeError(rw, http.StatusInternalServerError, err)
				return
			}
			rw.Header().Set("Content-Disposition", `attachment; filename="cookiewall-export.json"`)
			writeJSON(rw, http.StatusOK, exp)
		})
		r.Get("/stats", func(rw http.ResponseWriter, req *http.Request) {
			st, err := w.Stats(req.Context())
			if err != nil {
				writeError(rw, http.StatusInternalServerError, err)
				return
			}
			writeJSON(rw, http.StatusOK, st)
		})

		r.Get("/badge", func(rw http.ResponseWriter, req *http.Request) {
			b, ok := w.Badge(req.URL.Query().Get("url"))
			if !ok {
				writeError(rw, http.StatusNotFound, errors.New("no badge for url"))
				return
			}
			writeJSON(rw, http.StatusOK, b)
		})
		r.Get("/notifications", func(rw http.ResponseWriter, req *http.Request) {
			writeJSON(rw, http.StatusOK, w.Notifications())
		})
	})
	return r
}

func (w *Warden) handleInspect(rw http.ResponseWriter, req *http.Request) {
	w.serveInspection(rw, req, func(ctx context.Context, in inspectRequest) (*Inspection, error) {
		return w.Inspect(ctx, in.URL, InspectOptions{Decline: in.Decline, Static: in.Static})
	})
}

func (w *Warden) handleAnalyze(rw http.ResponseWriter, req *http.Request) {
	w.serveInspection(rw, req, func(ctx context.Context, in inspectRequest) (*Inspection, error) {
		return w.AnalyzeStatic(ctx, in.URL)
	})
}

func (w *Warden) serveInspection(rw http.ResponseWriter, req *http.Request, run func(context.Context, inspectRequest) (*Inspection, error)) {
	var in inspectRequest
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		writeError(rw, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	insp, err := run(req.Context(), in)
	if err != nil {
		shield.GetLogger(req.Context()).Warn("warden: inspection failed", "url", in.URL, "error", err)
		writeError(rw, statusFor(err), err)
		return
	}
	writeJSON(rw, http.StatusOK, insp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

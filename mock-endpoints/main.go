package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/Priya8975/taskflow-webhooks/internal/signature"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// receiver is a local webhook endpoint for exercising the delivery worker.
type receiver struct {
	secret   string
	requests atomic.Int64
	flaky    atomic.Int64
	logger   *slog.Logger
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	port := "9090"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}

	rc := &receiver{secret: os.Getenv("SECRET"), logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// 200 immediately.
	r.Post("/webhook/success", rc.handle(func(w http.ResponseWriter) int {
		return reply(w, http.StatusOK, "received")
	}))
	// 200 after 3s.
	r.Post("/webhook/slow", rc.handle(func(w http.ResponseWriter) int {
		time.Sleep(3 * time.Second)
		return reply(w, http.StatusOK, "received (slow)")
	}))
	// 500 always; retried until attempts run out.
	r.Post("/webhook/fail", rc.handle(func(w http.ResponseWriter) int {
		return reply(w, http.StatusInternalServerError, "internal server error")
	}))
	// 400 always; never retried.
	r.Post("/webhook/reject", rc.handle(func(w http.ResponseWriter) int {
		return reply(w, http.StatusBadRequest, "rejected")
	}))
	// 503 on every other request.
	r.Post("/webhook/flaky", rc.handle(func(w http.ResponseWriter) int {
		if rc.flaky.Add(1)%2 == 1 {
			return reply(w, http.StatusServiceUnavailable, "try again")
		}
		return reply(w, http.StatusOK, "received (flaky)")
	}))

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int64{"total_requests": rc.requests.Load()})
	})

	logger.Info("mock endpoint server starting", "port", port, "verify_signatures", rc.secret != "")
	if err := http.ListenAndServe(":"+port, r); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// handle reads the body, checks the signature when SECRET is set, and logs
// the request before delegating to respond.
func (rc *receiver) handle(respond func(w http.ResponseWriter) int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count := rc.requests.Add(1)

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read error", http.StatusBadRequest)
			return
		}

		sig := r.Header.Get(signature.Header)
		if rc.secret != "" && !signature.Verify(body, sig, rc.secret) {
			rc.logger.Warn("signature rejected",
				"request", count,
				"path", r.URL.Path,
				"delivery_id", r.Header.Get("X-Webhook-Delivery"),
			)
			reply(w, http.StatusUnauthorized, "invalid signature")
			return
		}

		status := respond(w)
		rc.logger.Info("webhook received",
			"request", count,
			"path", r.URL.Path,
			"status", status,
			"event", r.Header.Get("X-Webhook-Event"),
			"delivery_id", r.Header.Get("X-Webhook-Delivery"),
			"signed", sig != "",
			"bytes", len(body),
		)
	}
}

func reply(w http.ResponseWriter, status int, msg string) int {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"status": msg})
	return status
}

package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type healthBody struct {
	Status      string            `json:"status"`
	Checks      map[string]string `json:"checks,omitempty"`
	Maintenance bool              `json:"maintenance,omitempty"`
}

// Health answers 200 when every dependency responds and 503 otherwise.
func Health(checks map[string]Pinger, log logrus.FieldLogger) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		body := healthBody{Status: "ok", Checks: make(map[string]string, len(names))}
		for _, name := range names {
			if err := checks[name].Ping(ctx); err != nil {
				log.WithError(err).WithField("check", name).Warn("health check failed")
				body.Checks[name] = "down"
				body.Status = "degraded"
				body.Maintenance = true
				continue
			}
			body.Checks[name] = "up"
		}
		status := http.StatusOK
		if body.Maintenance {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, body)
	}
}

// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpapi exposes the fabric's components — persisted event
// queries, backup capture/restore, lifecycle health, and hook circuit
// breaker stats and resets — over HTTP, routed with chi the way the
// teacher's transport package wraps its handlers. It owns no business
// logic; every handler is a thin adapter onto events.Bus,
// backup.Coordinator, lifecycle.Machine, or hooks.Executor.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/agentfabric/corefabric/backup"
	"github.com/agentfabric/corefabric/events"
	"github.com/agentfabric/corefabric/hooks"
	"github.com/agentfabric/corefabric/lifecycle"
	"github.com/agentfabric/corefabric/metrics"
)

// Router bundles the dependencies the HTTP surface reads from.
// Coordinator, Executor, and a per-agent Machines map may be nil, in
// which case the corresponding routes respond 503 rather than
// panicking.
type Router struct {
	Bus         *events.Bus
	Coordinator *backup.Coordinator
	Executor    *hooks.Executor
	Machines    func(agentID string) (*lifecycle.Machine, bool)
	Metrics     *metrics.Registry
}

// NewMux builds the chi router. It mounts /metrics via Metrics.Handler
// when Metrics is non-nil, and wraps every route in the same
// request-logging + route-pattern metrics middleware the teacher's
// transport package builds around chi.RouteContext.
func (rt *Router) NewMux() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	if rt.Metrics != nil {
		r.Use(metricsMiddleware(rt.Metrics))
		r.Handle("/metrics", rt.Metrics.Handler())
	}

	r.Get("/healthz", rt.handleHealthz)

	r.Route("/v1/events", func(er chi.Router) {
		er.Get("/by-pattern", rt.handleEventsByPattern)
		er.Get("/by-correlation/{correlationID}", rt.handleEventsByCorrelation)
		er.Get("/stats", rt.handleEventStats)
	})

	r.Route("/v1/backups", func(br chi.Router) {
		br.Post("/capture", rt.handleBackupCapture)
		br.Post("/restore", rt.handleBackupRestore)
	})

	r.Get("/v1/agents/{agentID}/health", rt.handleAgentHealth)

	r.Route("/v1/hooks/breakers", func(hr chi.Router) {
		hr.Get("/", rt.handleHookBreakerStats)
		hr.Post("/{hookName}/reset", rt.handleHookBreakerReset)
		hr.Post("/reset-all", rt.handleHookBreakerResetAll)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, req)
		slog.Debug("httpapi: request", "method", req.Method, "path", req.URL.Path, "duration", time.Since(start))
	})
}

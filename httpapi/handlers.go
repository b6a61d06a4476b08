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

package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (rt *Router) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) handleEventsByPattern(w http.ResponseWriter, r *http.Request) {
	if rt.Bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not configured")
		return
	}
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		writeError(w, http.StatusBadRequest, "pattern query parameter is required")
		return
	}
	events, err := rt.Bus.QueryByPattern(r.Context(), pattern)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (rt *Router) handleEventsByCorrelation(w http.ResponseWriter, r *http.Request) {
	if rt.Bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not configured")
		return
	}
	correlationID := chi.URLParam(r, "correlationID")
	events, err := rt.Bus.QueryByCorrelationID(r.Context(), correlationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (rt *Router) handleEventStats(w http.ResponseWriter, r *http.Request) {
	if rt.Bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not configured")
		return
	}
	stats, err := rt.Bus.StorageStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type captureRequest struct {
	BackupID string `json:"backup_id"`
	ParentID string `json:"parent_id"`
}

func (rt *Router) handleBackupCapture(w http.ResponseWriter, r *http.Request) {
	if rt.Coordinator == nil {
		writeError(w, http.StatusServiceUnavailable, "backup coordinator not configured")
		return
	}
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.BackupID == "" {
		writeError(w, http.StatusBadRequest, "backup_id is required")
		return
	}
	data, err := rt.Coordinator.Capture(r.Context(), req.BackupID, req.ParentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (rt *Router) handleBackupRestore(w http.ResponseWriter, r *http.Request) {
	if rt.Coordinator == nil {
		writeError(w, http.StatusServiceUnavailable, "backup coordinator not configured")
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body: "+err.Error())
		return
	}
	if err := rt.Coordinator.Restore(r.Context(), data, nil); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

func (rt *Router) handleAgentHealth(w http.ResponseWriter, r *http.Request) {
	if rt.Machines == nil {
		writeError(w, http.StatusServiceUnavailable, "lifecycle machines not configured")
		return
	}
	agentID := chi.URLParam(r, "agentID")
	m, ok := rt.Machines(agentID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown agent: "+agentID)
		return
	}
	h := m.Health()
	writeJSON(w, http.StatusOK, agentHealthResponse{
		AgentID:          agentID,
		State:            h.State.String(),
		UptimeSeconds:    h.Uptime.Seconds(),
		RecoveryAttempts: h.RecoveryAttempts,
	})
}

type agentHealthResponse struct {
	AgentID          string  `json:"agent_id"`
	State            string  `json:"state"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
	RecoveryAttempts int     `json:"recovery_attempts"`
}

func (rt *Router) handleHookBreakerStats(w http.ResponseWriter, r *http.Request) {
	if rt.Executor == nil {
		writeError(w, http.StatusServiceUnavailable, "hook executor not configured")
		return
	}
	stats := rt.Executor.BreakerStats()
	out := make(map[string]string, len(stats))
	for name, state := range stats {
		out[name] = state.String()
	}
	writeJSON(w, http.StatusOK, out)
}

func (rt *Router) handleHookBreakerReset(w http.ResponseWriter, r *http.Request) {
	if rt.Executor == nil {
		writeError(w, http.StatusServiceUnavailable, "hook executor not configured")
		return
	}
	rt.Executor.ResetBreaker(chi.URLParam(r, "hookName"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (rt *Router) handleHookBreakerResetAll(w http.ResponseWriter, r *http.Request) {
	if rt.Executor == nil {
		writeError(w, http.StatusServiceUnavailable, "hook executor not configured")
		return
	}
	rt.Executor.ResetAllBreakers()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// Package server is the admin control plane: job schedules, manual
// triggers, health and metrics.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"stockeye-telegram-bot/internal/scheduler"
)

// Dependencies injected into the handlers.
type Dependencies struct {
	Scheduler   *scheduler.Scheduler
	AdminChatID int64
}

// triggerRequest is the optional body of a trigger call. ChatID
// overrides the configured admin chat for the completion message.
type triggerRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Symbol    string `json:"stock_identifier"`
	ChatID    int64  `json:"chat_id"`
}

// NewRouter builds the admin HTTP handler.
func NewRouter(dep Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("/api/v1/schedules", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"schedules": dep.Scheduler.Statuses(),
		})
	})

	mux.HandleFunc("/api/v1/trigger/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		jobID := strings.TrimPrefix(r.URL.Path, "/api/v1/trigger/")
		if jobID == "" || strings.Contains(jobID, "/") {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown job"})
			return
		}

		var req triggerRequest
		// An empty body is fine; only reject malformed JSON.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
			return
		}

		params := scheduler.Params{
			StartDate: req.StartDate,
			EndDate:   req.EndDate,
			Symbol:    req.Symbol,
			ChatID:    req.ChatID,
		}
		if params.ChatID == 0 {
			params.ChatID = dep.AdminChatID
		}

		switch err := dep.Scheduler.Trigger(jobID, params); err {
		case nil:
			writeJSON(w, http.StatusAccepted, map[string]string{
				"job_id": jobID,
				"status": "started",
			})
		case scheduler.ErrUnknownJob:
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown job"})
		case scheduler.ErrAlreadyRunning:
			writeJSON(w, http.StatusConflict, map[string]string{
				"job_id": jobID,
				"status": "already running",
			})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("failed to write response: %v", err)
	}
}

package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coffersTech/logvault/internal/engine"
	"github.com/coffersTech/logvault/internal/model"
	"github.com/coffersTech/logvault/internal/storage"
)

type envelope struct {
	Success    bool               `json:"success"`
	Message    string             `json:"message,omitempty"`
	Data       any                `json:"data"`
	Pagination *engine.Pagination `json:"pagination,omitempty"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("JSON encode error", "error", err)
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg, detail string) {
	writeJSON(w, status, errorBody{Error: msg, Message: detail})
}

// writeFailure maps an error from the storage or query layer to a response.
// action names the operation for 500 responses, e.g. "Failed to fetch logs".
func (s *Server) writeFailure(w http.ResponseWriter, err error, action string) {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		countRejected("validation")
		writeError(w, http.StatusBadRequest, ve.Error(), "")
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Log not found", "")
	case errors.Is(err, engine.ErrInvalidSortField),
		errors.Is(err, engine.ErrInvalidQuery),
		errors.Is(err, engine.ErrInvalidInterval):
		writeError(w, http.StatusBadRequest, err.Error(), "")
	default:
		s.logger.Error(action, "error", err)
		writeError(w, http.StatusInternalServerError, action, err.Error())
	}
}

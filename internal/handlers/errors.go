package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/otcheredev/cabinet-bootstrap/internal/failure"
	"github.com/otcheredev/cabinet-bootstrap/internal/middleware"
	"github.com/otcheredev/cabinet-bootstrap/internal/monitor"
)

const clientSource = "client"

// ErrorHandler receives the errors reported by the client-side error monitor
type ErrorHandler struct {
	observer monitor.Observer
}

func NewErrorHandler(observer monitor.Observer) *ErrorHandler {
	return &ErrorHandler{observer: observer}
}

type errorReport struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Source  string `json:"source"`
}

// Report classifies a client error and tells the client whether to show a
// refresh notification
func (h *ErrorHandler) Report(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req errorReport
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Code) == "" && strings.TrimSpace(req.Message) == "" {
		http.Error(w, "code or message is required", http.StatusBadRequest)
		return
	}

	source := clientSource
	if req.Source != "" {
		source = clientSource + ":" + req.Source
	}

	decision := h.observer.Observe(r.Context(), monitor.Event{
		Source: source,
		UserID: session.UserID,
		Email:  session.Email,
		Err:    &failure.BackendError{Code: req.Code, Message: req.Message},
	})
	writeJSON(w, http.StatusOK, decision)
}

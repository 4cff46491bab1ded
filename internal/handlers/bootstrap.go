package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/otcheredev/cabinet-bootstrap/internal/identity"
	"github.com/otcheredev/cabinet-bootstrap/internal/middleware"
	"github.com/otcheredev/cabinet-bootstrap/internal/models"
	"github.com/otcheredev/cabinet-bootstrap/internal/repository"
	"github.com/otcheredev/cabinet-bootstrap/internal/services"
	"github.com/rs/zerolog/log"
)

// Auth state events that trigger a reconcile
const (
	EventSignedIn       = "SIGNED_IN"
	EventUserUpdated    = "USER_UPDATED"
	EventInitialSession = "INITIAL_SESSION"
)

type BootstrapHandler struct {
	bootstrap *services.BootstrapService
}

func NewBootstrapHandler(bootstrap *services.BootstrapService) *BootstrapHandler {
	return &BootstrapHandler{bootstrap: bootstrap}
}

type cabinetFields struct {
	Name        string `json:"name"`
	City        string `json:"city"`
	OpeningDate string `json:"opening_date"` // YYYY-MM-DD
}

func (f cabinetFields) parse() (models.CabinetFields, error) {
	out := models.CabinetFields{
		Name: strings.TrimSpace(f.Name),
		City: strings.TrimSpace(f.City),
	}
	if f.OpeningDate != "" {
		d, err := time.Parse(time.DateOnly, f.OpeningDate)
		if err != nil {
			return out, errors.New("opening_date must be YYYY-MM-DD")
		}
		out.OpeningDate = &d
	}
	return out, nil
}

type bootstrapRequest struct {
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
	Cabinet   cabinetFields `json:"cabinet"`
}

type authEventRequest struct {
	Event string `json:"event"`
}

type profileResponse struct {
	Success bool                      `json:"success"`
	Message string                    `json:"message"`
	Result  *services.ReconcileResult `json:"result"`
}

// Bootstrap handles the signup and OAuth callback entry points
func (h *BootstrapHandler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req bootstrapRequest
	if err := decodeOptional(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	fields, err := req.Cabinet.parse()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.reconcile(w, r, services.ReconcileRequest{
		UserID:  session.UserID,
		Email:   session.Email,
		Hints:   hints(session, req.FirstName, req.LastName),
		Cabinet: fields,
		Entry:   models.EntrySignup,
	})
}

// AuthEvent handles auth state changes forwarded by the client listener
func (h *BootstrapHandler) AuthEvent(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req authEventRequest
	if err := decodeOptional(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	switch req.Event {
	case EventSignedIn, EventUserUpdated, EventInitialSession:
	default:
		writeJSON(w, http.StatusAccepted, map[string]interface{}{"event": req.Event, "ignored": true})
		return
	}

	h.reconcile(w, r, services.ReconcileRequest{
		UserID: session.UserID,
		Email:  session.Email,
		Hints:  hints(session, "", ""),
		Entry:  models.EntryAuthEvent,
	})
}

// SaveProfile handles the profile dialog
func (h *BootstrapHandler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req bootstrapRequest
	if err := decodeOptional(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	fields, err := req.Cabinet.parse()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	names := models.NameHints{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
	}
	res, err := h.bootstrap.SaveProfile(r.Context(), services.ReconcileRequest{
		UserID:  session.UserID,
		Email:   session.Email,
		Hints:   hints(session, "", ""),
		Cabinet: fields,
	}, names)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := profileResponse{Result: res}
	switch res.Outcome {
	case models.OutcomeSuccess:
		resp.Success, resp.Message = true, "Profile saved."
	case models.OutcomePartial:
		resp.Success, resp.Message = true, "Profile saved. Some settings will be completed after a refresh."
	default:
		resp.Message = "Profile could not be saved. Please try again."
	}
	writeJSON(w, http.StatusOK, resp)
}

// Cabinet returns the cabinet and membership of the signed-in user
func (h *BootstrapHandler) Cabinet(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	current, err := h.bootstrap.Current(r.Context(), session.UserID, session.Email)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "Cabinet not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("user_id", session.UserID.String()).Msg("Failed to get cabinet")
		http.Error(w, "Failed to get cabinet", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, current)
}

// Team lists the members of the signed-in user's cabinet
func (h *BootstrapHandler) Team(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	members, err := h.bootstrap.Team(r.Context(), session.UserID, session.Email)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "Cabinet not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("user_id", session.UserID.String()).Msg("Failed to list team")
		http.Error(w, "Failed to list team", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

// History lists the reconcile calls of the signed-in user
func (h *BootstrapHandler) History(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	logs, err := h.bootstrap.History(r.Context(), session.UserID, limit, offset)
	if errors.Is(err, services.ErrAuditDisabled) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("user_id", session.UserID.String()).Msg("Failed to get bootstrap history")
		http.Error(w, "Failed to get bootstrap history", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// reconcile answers 200 for success and partial outcomes; partial is usable
func (h *BootstrapHandler) reconcile(w http.ResponseWriter, r *http.Request, req services.ReconcileRequest) {
	res, err := h.bootstrap.Reconcile(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	status := http.StatusOK
	if res.Outcome == models.OutcomeFailed {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// hints prefers names typed by the user over the session metadata
func hints(s models.Session, firstName, lastName string) models.NameHints {
	firstName, lastName = strings.TrimSpace(firstName), strings.TrimSpace(lastName)
	if firstName != "" || lastName != "" {
		return models.NameHints{FirstName: firstName, LastName: lastName}
	}
	id := identity.FromSession(s)
	return models.NameHints{FirstName: id.FirstName, LastName: id.LastName}
}

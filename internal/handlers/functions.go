package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/otcheredev/cabinet-bootstrap/internal/failure"
	"github.com/otcheredev/cabinet-bootstrap/internal/privileged"
	"github.com/rs/zerolog/log"
)

// FunctionsHandler serves the privileged server functions called by
// privileged.HTTPChannel
type FunctionsHandler struct {
	channel privileged.Channel
}

func NewFunctionsHandler(channel privileged.Channel) *FunctionsHandler {
	return &FunctionsHandler{channel: channel}
}

// CreateTeamMember serves create-team-member
func (h *FunctionsHandler) CreateTeamMember(w http.ResponseWriter, r *http.Request) {
	var req privileged.MemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFunctionError(w, privileged.FunctionCreateTeamMember, privileged.ErrInvalidRequest)
		return
	}

	result, err := h.channel.CreateMember(r.Context(), req)
	if err != nil {
		writeFunctionError(w, privileged.FunctionCreateTeamMember, err)
		return
	}

	data, err := json.Marshal(result.Member)
	if err != nil {
		writeFunctionError(w, privileged.FunctionCreateTeamMember, err)
		return
	}
	resp := privileged.Response{
		Success:           true,
		Data:              data,
		EmailSent:         result.EmailSent,
		TemporaryPassword: result.TemporaryCredential,
	}
	if result.AuthUserID != nil {
		resp.UserID = result.AuthUserID.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateTeamMember serves update-team-member
func (h *FunctionsHandler) UpdateTeamMember(w http.ResponseWriter, r *http.Request) {
	var req privileged.UpdateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFunctionError(w, privileged.FunctionUpdateTeamMember, privileged.ErrInvalidRequest)
		return
	}

	member, err := h.channel.UpdateMember(r.Context(), req)
	if err != nil {
		writeFunctionError(w, privileged.FunctionUpdateTeamMember, err)
		return
	}
	writeFunctionData(w, privileged.FunctionUpdateTeamMember, member)
}

// CreateCabinet serves create-cabinet
func (h *FunctionsHandler) CreateCabinet(w http.ResponseWriter, r *http.Request) {
	var req privileged.CabinetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFunctionError(w, privileged.FunctionCreateCabinet, privileged.ErrInvalidRequest)
		return
	}

	cabinet, err := h.channel.CreateCabinet(r.Context(), req)
	if err != nil {
		writeFunctionError(w, privileged.FunctionCreateCabinet, err)
		return
	}
	writeFunctionData(w, privileged.FunctionCreateCabinet, cabinet)
}

func writeFunctionData(w http.ResponseWriter, function string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		writeFunctionError(w, function, err)
		return
	}
	writeJSON(w, http.StatusOK, privileged.Response{Success: true, Data: data})
}

// writeFunctionError keeps the classified code so the caller can classify it again
func writeFunctionError(w http.ResponseWriter, function string, err error) {
	c := failure.Classify(err)

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, privileged.ErrInvalidRequest):
		status = http.StatusBadRequest
	case c.Kind == failure.KindDuplicateKey:
		status = http.StatusConflict
	case c.Kind == failure.KindPermissionDenied, c.Kind == failure.KindPolicyRecursion:
		status = http.StatusForbidden
	}

	log.Error().
		Err(err).
		Str("function", function).
		Str("kind", string(c.Kind)).
		Msg("Privileged function failed")

	writeJSON(w, status, privileged.Response{
		Success: false,
		Error:   err.Error(),
		Code:    c.Code,
	})
}

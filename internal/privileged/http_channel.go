package privileged

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/cabinet-bootstrap/internal/failure"
	"github.com/otcheredev/cabinet-bootstrap/internal/models"
)

// HTTPChannel calls the server-side functions over HTTP
type HTTPChannel struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewHTTPChannel creates a channel for functions served under baseURL
func NewHTTPChannel(baseURL, apiKey string, timeout time.Duration) *HTTPChannel {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &HTTPChannel{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// CreateMember invokes create-team-member
func (c *HTTPChannel) CreateMember(ctx context.Context, req MemberRequest) (*MemberResult, error) {
	resp, err := c.call(ctx, FunctionCreateTeamMember, req)
	if err != nil {
		return nil, err
	}

	result := &MemberResult{
		EmailSent:           resp.EmailSent,
		TemporaryCredential: resp.TemporaryPassword,
	}
	if err := json.Unmarshal(resp.Data, &result.Member); err != nil {
		return nil, fmt.Errorf("failed to decode team member: %w", err)
	}
	if resp.UserID != "" {
		if id, err := uuid.Parse(resp.UserID); err == nil {
			result.AuthUserID = &id
		}
	}
	return result, nil
}

// UpdateMember invokes update-team-member
func (c *HTTPChannel) UpdateMember(ctx context.Context, req UpdateMemberRequest) (*models.TeamMember, error) {
	resp, err := c.call(ctx, FunctionUpdateTeamMember, req)
	if err != nil {
		return nil, err
	}

	var member models.TeamMember
	if err := json.Unmarshal(resp.Data, &member); err != nil {
		return nil, fmt.Errorf("failed to decode team member: %w", err)
	}
	return &member, nil
}

// CreateCabinet invokes create-cabinet
func (c *HTTPChannel) CreateCabinet(ctx context.Context, req CabinetRequest) (*models.Cabinet, error) {
	resp, err := c.call(ctx, FunctionCreateCabinet, req)
	if err != nil {
		return nil, err
	}

	var cabinet models.Cabinet
	if err := json.Unmarshal(resp.Data, &cabinet); err != nil {
		return nil, fmt.Errorf("failed to decode cabinet: %w", err)
	}
	return &cabinet, nil
}

func (c *HTTPChannel) call(ctx context.Context, function string, payload interface{}) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", function, err)
	}

	url := fmt.Sprintf("%s/functions/v1/%s", c.baseURL, function)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s: %w", function, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", function, err)
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &failure.BackendError{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("%s returned a non-JSON body: %s", function, truncate(string(raw), 200)),
		}
	}

	if resp.StatusCode >= http.StatusBadRequest || !out.Success {
		msg := out.Error
		if msg == "" {
			msg = fmt.Sprintf("%s failed", function)
		}
		return nil, &failure.BackendError{Status: resp.StatusCode, Code: out.Code, Message: msg}
	}
	return &out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

package privileged

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/cabinet-bootstrap/internal/failure"
)

// AuthUser is an auth-provider account
type AuthUser struct {
	ID                uuid.UUID
	Email             string
	TemporaryPassword string
	Created           bool
}

// AuthAdmin creates auth-provider accounts with service rights
type AuthAdmin interface {
	EnsureUser(ctx context.Context, email, firstName, lastName string) (*AuthUser, error)
}

// GoTrueAdmin talks to the auth provider's admin API
type GoTrueAdmin struct {
	client     *http.Client
	baseURL    string
	serviceKey string
}

// NewGoTrueAdmin creates an admin client for the auth API at baseURL (e.g. https://x/auth/v1)
func NewGoTrueAdmin(baseURL, serviceKey string) *GoTrueAdmin {
	return &GoTrueAdmin{
		client:     &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
	}
}

type adminUser struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

type adminError struct {
	Code      interface{} `json:"code"`
	ErrorCode string      `json:"error_code"`
	Msg       string      `json:"msg"`
	Message   string      `json:"message"`
}

func (e adminError) text() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.Message
}

// EnsureUser returns the account for email, creating it with a temporary password if missing
func (a *GoTrueAdmin) EnsureUser(ctx context.Context, email, firstName, lastName string) (*AuthUser, error) {
	password, err := TemporaryPassword()
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"email":         email,
		"password":      password,
		"email_confirm": true,
		"user_metadata": map[string]string{
			"first_name": firstName,
			"last_name":  lastName,
		},
	}

	var created adminUser
	status, apiErr, err := a.do(ctx, http.MethodPost, "/admin/users", payload, &created)
	if err != nil {
		return nil, err
	}
	switch {
	case status < http.StatusBadRequest:
		return &AuthUser{ID: created.ID, Email: created.Email, TemporaryPassword: password, Created: true}, nil
	case status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(apiErr.text()), "already"):
		return a.findByEmail(ctx, email)
	default:
		return nil, &failure.BackendError{Status: status, Code: apiErr.ErrorCode, Message: apiErr.text()}
	}
}

func (a *GoTrueAdmin) findByEmail(ctx context.Context, email string) (*AuthUser, error) {
	var page struct {
		Users []adminUser `json:"users"`
	}
	path := "/admin/users?filter=" + url.QueryEscape(email)
	status, apiErr, err := a.do(ctx, http.MethodGet, path, nil, &page)
	if err != nil {
		return nil, err
	}
	if status >= http.StatusBadRequest {
		return nil, &failure.BackendError{Status: status, Code: apiErr.ErrorCode, Message: apiErr.text()}
	}

	for _, u := range page.Users {
		if strings.EqualFold(u.Email, email) {
			return &AuthUser{ID: u.ID, Email: u.Email}, nil
		}
	}
	return nil, fmt.Errorf("auth user %s reported as existing but not found", email)
}

func (a *GoTrueAdmin) do(ctx context.Context, method, path string, payload, out interface{}) (int, adminError, error) {
	var apiErr adminError

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, apiErr, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return 0, apiErr, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.serviceKey)
	req.Header.Set("apikey", a.serviceKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, apiErr, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, apiErr, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		_ = json.Unmarshal(raw, &apiErr)
		if apiErr.text() == "" {
			apiErr.Message = string(raw)
		}
		return resp.StatusCode, apiErr, nil
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, apiErr, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, apiErr, nil
}

// TemporaryPassword generates a random one-time credential
func TemporaryPassword() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate temporary password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

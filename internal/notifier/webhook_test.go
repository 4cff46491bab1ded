package notifier_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/otcheredev/cabinet-bootstrap/internal/notifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookDispatcher_SendWelcome(t *testing.T) {
	var got notifier.Welcome
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := notifier.NewWebhookDispatcher(srv.URL, "key")
	err := d.SendWelcome(context.Background(), notifier.Welcome{
		Email:               "jean.dupont@example.com",
		FirstName:           "Jean",
		TemporaryCredential: "tmp",
		LoginURL:            "https://app.example.com/login",
	})

	require.NoError(t, err)
	assert.Equal(t, "jean.dupont@example.com", got.Email)
	assert.Equal(t, "tmp", got.TemporaryCredential)
}

func TestWebhookDispatcher_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "smtp down", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := notifier.NewWebhookDispatcher(srv.URL, "").SendWelcome(context.Background(), notifier.Welcome{Email: "a@b.c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

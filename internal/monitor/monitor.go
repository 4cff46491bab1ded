// Package monitor turns reported failures into user notification decisions.
// Repeated failures with the same signature are shown a bounded number of
// times per window, and policy recursion errors trigger an admin-rights fix-up.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/cabinet-bootstrap/internal/cache"
	"github.com/otcheredev/cabinet-bootstrap/internal/failure"
	"github.com/otcheredev/cabinet-bootstrap/internal/metrics"
	"github.com/rs/zerolog/log"
)

// ActionRefresh asks the client to reload the page
const ActionRefresh = "refresh"

const keyPrefix = "monitor"

// Remediator repairs the admin rights of a user
type Remediator interface {
	RemediateAdminRights(ctx context.Context, userID uuid.UUID, email string) error
}

// Config holds the monitor settings
type Config struct {
	MaxNotifications int
	Window           time.Duration

	// RemediateTimeout bounds the admin-rights fix-up, which outlives the
	// request that reported the error.
	RemediateTimeout time.Duration
}

// ErrorMonitor is the Observer used by the HTTP layer and the services
type ErrorMonitor struct {
	counters cache.Cache
	cfg      Config

	mu         sync.RWMutex
	remediator Remediator
}

// NewErrorMonitor creates an error monitor
func NewErrorMonitor(counters cache.Cache, cfg Config) *ErrorMonitor {
	if cfg.MaxNotifications <= 0 {
		cfg.MaxNotifications = 3
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	if cfg.RemediateTimeout <= 0 {
		cfg.RemediateTimeout = 30 * time.Second
	}
	return &ErrorMonitor{counters: counters, cfg: cfg}
}

// SetRemediator registers the admin-rights fix-up. It is called once at
// startup, after the bootstrap service exists.
func (m *ErrorMonitor) SetRemediator(r Remediator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remediator = r
}

// Observe classifies ev and decides whether the user should be notified
func (m *ErrorMonitor) Observe(ctx context.Context, ev Event) Decision {
	c := failure.Classify(ev.Err)
	metrics.ClassifiedErrors.WithLabelValues(ev.Source, string(c.Kind)).Inc()

	d := Decision{Kind: c.Kind, Signature: c.Signature}
	if ev.Internal {
		return d
	}

	count := m.count(ctx, ev.UserID, c.Signature)
	d.Notify = count <= int64(m.cfg.MaxNotifications)
	if d.Notify {
		d.Message = c.UserMessage()
		if c.Kind != failure.KindDuplicateKey {
			d.Action = ActionRefresh
		}
		metrics.Notifications.WithLabelValues("shown").Inc()
	} else {
		metrics.Notifications.WithLabelValues("suppressed").Inc()
	}

	log.Warn().
		Err(ev.Err).
		Str("source", ev.Source).
		Str("kind", string(c.Kind)).
		Str("signature", c.Signature).
		Str("user_id", ev.UserID.String()).
		Int64("occurrence", count).
		Bool("notify", d.Notify).
		Msg("Client error reported")

	// Remediation is bounded by the same window as notifications.
	if c.Kind == failure.KindPolicyRecursion && ev.UserID != uuid.Nil && d.Notify {
		d.Remediated = m.remediate(ctx, ev)
	}
	return d
}

func (m *ErrorMonitor) count(ctx context.Context, userID uuid.UUID, signature string) int64 {
	if m.counters == nil {
		return 1
	}
	subject := "anonymous"
	if userID != uuid.Nil {
		subject = userID.String()
	}
	n, err := m.counters.Incr(ctx, cache.Key(keyPrefix, subject, signature), m.cfg.Window)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to count error notification")
		return 1
	}
	return n
}

func (m *ErrorMonitor) remediate(ctx context.Context, ev Event) bool {
	m.mu.RLock()
	r := m.remediator
	m.mu.RUnlock()
	if r == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.RemediateTimeout)
	defer cancel()

	if err := r.RemediateAdminRights(ctx, ev.UserID, ev.Email); err != nil {
		log.Error().Err(err).Str("user_id", ev.UserID.String()).Msg("Admin rights remediation failed")
		return false
	}
	log.Info().Str("user_id", ev.UserID.String()).Msg("Admin rights remediated")
	return true
}

package services_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/otcheredev/cabinet-bootstrap/internal/memstore"
	"github.com/otcheredev/cabinet-bootstrap/internal/models"
	"github.com/otcheredev/cabinet-bootstrap/internal/notifier"
	"github.com/otcheredev/cabinet-bootstrap/internal/privileged"
	"github.com/otcheredev/cabinet-bootstrap/internal/services"
	"github.com/otcheredev/cabinet-bootstrap/pkg/fallback"
)

var (
	errRecursion = &pgconn.PgError{
		Code:    "42P17",
		Message: `infinite recursion detected in policy for relation "team_members"`,
	}
	errBackendDown = errors.New("connection refused")
)

var testOpts = services.Options{
	CallTimeout: 2 * time.Second,
	Backoff:     fallback.Backoff{MaxAttempts: 3, BaseDelay: time.Millisecond},
	LoginURL:    "https://app.example.com/login",
}

// faultyCabinets injects failures in front of the in-memory cabinet store
type faultyCabinets struct {
	*memstore.CabinetRepository

	createErr    error
	procErr      error
	findErr      error
	beforeCreate func()

	creates atomic.Int32
	procs   atomic.Int32
}

func (f *faultyCabinets) Create(ctx context.Context, c *models.Cabinet) error {
	f.creates.Add(1)
	if f.beforeCreate != nil {
		f.beforeCreate()
	}
	if f.createErr != nil {
		return f.createErr
	}
	return f.CabinetRepository.Create(ctx, c)
}

func (f *faultyCabinets) CreateViaProcedure(ctx context.Context, ownerID uuid.UUID, name, city string) error {
	f.procs.Add(1)
	if f.procErr != nil {
		return f.procErr
	}
	return f.CabinetRepository.CreateViaProcedure(ctx, ownerID, name, city)
}

func (f *faultyCabinets) FindByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Cabinet, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.CabinetRepository.FindByOwner(ctx, ownerID)
}

// faultyMembers injects failures in front of the in-memory member store
type faultyMembers struct {
	*memstore.MemberRepository

	createErr   error
	failCreates int32 // number of leading Create calls that fail with createErr
	updateErr   error

	creates atomic.Int32
	updates atomic.Int32
}

func (f *faultyMembers) Create(ctx context.Context, m *models.TeamMember) error {
	n := f.creates.Add(1)
	if f.createErr != nil && (f.failCreates == 0 || n <= f.failCreates) {
		return f.createErr
	}
	return f.MemberRepository.Create(ctx, m)
}

func (f *faultyMembers) Update(ctx context.Context, id uuid.UUID, u models.MemberUpdate) error {
	f.updates.Add(1)
	if f.updateErr != nil {
		return f.updateErr
	}
	return f.MemberRepository.Update(ctx, id, u)
}

// faultyProfiles fails every lookup
type faultyProfiles struct {
	*memstore.ProfileRepository
	err   error
	calls atomic.Int32
}

func (f *faultyProfiles) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	f.calls.Add(1)
	return nil, f.err
}

// recordingChannel records privileged calls and delegates to an inner channel
type recordingChannel struct {
	inner privileged.Channel

	createCabinetErr error
	createMemberErr  error
	updateMemberErr  error

	mu    sync.Mutex
	calls []string
}

func (c *recordingChannel) record(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
}

func (c *recordingChannel) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *recordingChannel) CreateMember(ctx context.Context, req privileged.MemberRequest) (*privileged.MemberResult, error) {
	c.record(privileged.FunctionCreateTeamMember)
	if c.createMemberErr != nil {
		return nil, c.createMemberErr
	}
	return c.inner.CreateMember(ctx, req)
}

func (c *recordingChannel) UpdateMember(ctx context.Context, req privileged.UpdateMemberRequest) (*models.TeamMember, error) {
	c.record(privileged.FunctionUpdateTeamMember)
	if c.updateMemberErr != nil {
		return nil, c.updateMemberErr
	}
	return c.inner.UpdateMember(ctx, req)
}

func (c *recordingChannel) CreateCabinet(ctx context.Context, req privileged.CabinetRequest) (*models.Cabinet, error) {
	c.record(privileged.FunctionCreateCabinet)
	if c.createCabinetErr != nil {
		return nil, c.createCabinetErr
	}
	return c.inner.CreateCabinet(ctx, req)
}

// fakeAuth creates auth accounts with a fixed temporary password
type fakeAuth struct{}

func (fakeAuth) EnsureUser(ctx context.Context, email, firstName, lastName string) (*privileged.AuthUser, error) {
	return &privileged.AuthUser{ID: uuid.New(), Email: email, TemporaryPassword: "tmp-secret", Created: true}, nil
}

// captureDispatcher collects welcome notifications
type captureDispatcher struct {
	sent chan notifier.Welcome
}

func newCaptureDispatcher() *captureDispatcher {
	return &captureDispatcher{sent: make(chan notifier.Welcome, 4)}
}

func (d *captureDispatcher) SendWelcome(ctx context.Context, w notifier.Welcome) error {
	d.sent <- w
	return nil
}

// fixture wires every bootstrap component over one in-memory store
type fixture struct {
	store      *memstore.Store
	cabinets   *faultyCabinets
	members    *faultyMembers
	channel    *recordingChannel
	dispatcher *captureDispatcher

	tenants   *services.TenantProvisioner
	reconcile *services.MembershipReconciler
	bootstrap *services.BootstrapService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil)
}

// newFixtureWith lets the test swap the profile store before wiring
func newFixtureWith(t *testing.T, profiles services.ProfileStore) *fixture {
	t.Helper()

	store := memstore.New()
	f := &fixture{
		store:      store,
		cabinets:   &faultyCabinets{CabinetRepository: store.Cabinets()},
		members:    &faultyMembers{MemberRepository: store.Members()},
		dispatcher: newCaptureDispatcher(),
	}
	f.channel = &recordingChannel{inner: privileged.NewDirect(store.Cabinets(), store.Members(), fakeAuth{})}

	if profiles == nil {
		profiles = store.Profiles()
	}
	f.tenants = services.NewTenantProvisioner(f.cabinets, f.channel, nil, testOpts)
	f.reconcile = services.NewMembershipReconciler(f.members, f.channel, f.dispatcher, nil, testOpts)
	f.bootstrap = services.NewBootstrapService(
		services.NewProfileEnsurer(profiles, nil, testOpts),
		f.tenants,
		f.reconcile,
		f.cabinets,
		store.Audit(),
	)
	return f
}

func identityFor(email string) models.UserIdentity {
	return models.UserIdentity{UserID: uuid.New(), Email: email, FirstName: "Jean", LastName: "Dupont"}
}

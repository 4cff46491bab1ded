package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/cabinet-bootstrap/internal/models"
	"github.com/otcheredev/cabinet-bootstrap/internal/privileged"
	"github.com/otcheredev/cabinet-bootstrap/internal/repository"
	"github.com/otcheredev/cabinet-bootstrap/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCabinet(t *testing.T, f *fixture) uuid.UUID {
	t.Helper()
	c := &models.Cabinet{Name: "Cabinet", OwnerID: uuid.New()}
	require.NoError(t, f.store.Cabinets().Create(context.Background(), c))
	return c.ID
}

func TestEnsureMembership_CreatesDirectly(t *testing.T) {
	f := newFixture(t)
	cabinetID := newCabinet(t, f)
	ident := identityFor("Jean.Dupont@Example.com")

	id, err := f.reconcile.EnsureMembership(context.Background(), ident.UserID, ident, cabinetID,
		models.MemberFlags{IsAdmin: true, IsOwner: true})
	require.NoError(t, err)

	member, err := f.store.Members().GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, cabinetID, member.CabinetID)
	assert.Equal(t, "jean.dupont@example.com", member.Contact)
	assert.True(t, member.IsAdmin)
	assert.True(t, member.IsOwner)
	assert.Equal(t, models.RoleDentist, member.Role)
	require.NotNil(t, member.UserID)
	assert.Equal(t, ident.UserID, *member.UserID)
	assert.Empty(t, f.channel.Calls())
}

func TestEnsureMembership_MonotonicUpgrade(t *testing.T) {
	f := newFixture(t)
	cabinetID := newCabinet(t, f)
	ident := identityFor("jean.dupont@example.com")
	ctx := context.Background()

	first, err := f.reconcile.EnsureMembership(ctx, ident.UserID, ident, cabinetID, models.MemberFlags{IsAdmin: false})
	require.NoError(t, err)
	second, err := f.reconcile.EnsureMembership(ctx, ident.UserID, ident, cabinetID, models.MemberFlags{IsAdmin: true})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.store.CountMembers())

	member, err := f.store.Members().GetByID(ctx, first)
	require.NoError(t, err)
	assert.True(t, member.IsAdmin)
}

func TestEnsureMembership_NeverDowngrades(t *testing.T) {
	f := newFixture(t)
	cabinetID := newCabinet(t, f)
	ident := identityFor("jean.dupont@example.com")
	ctx := context.Background()

	id, err := f.reconcile.EnsureMembership(ctx, ident.UserID, ident, cabinetID, models.MemberFlags{IsAdmin: true, IsOwner: true})
	require.NoError(t, err)

	again, err := f.reconcile.EnsureMembership(ctx, ident.UserID, ident, cabinetID, models.MemberFlags{IsAdmin: false})
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, int32(0), f.members.updates.Load(), "satisfied membership must be a no-op")

	member, err := f.store.Members().GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, member.IsAdmin)
	assert.True(t, member.IsOwner)
}

func TestEnsureMembership_MovesExistingContactToCabinet(t *testing.T) {
	f := newFixture(t)
	oldCabinet := newCabinet(t, f)
	newCab := newCabinet(t, f)
	ident := identityFor("jean.dupont@example.com")
	ctx := context.Background()

	id, err := f.reconcile.EnsureMembership(ctx, ident.UserID, ident, oldCabinet, models.MemberFlags{IsAdmin: true})
	require.NoError(t, err)

	moved, err := f.reconcile.EnsureMembership(ctx, ident.UserID, ident, newCab, models.MemberFlags{IsOwner: true})
	require.NoError(t, err)
	assert.Equal(t, id, moved)
	assert.Equal(t, 1, f.store.CountMembers())

	member, err := f.store.Members().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, newCab, member.CabinetID)
	assert.True(t, member.IsAdmin, "admin flag kept from the previous membership")
	assert.True(t, member.IsOwner)
}

func TestEnsureMembership_LinksInvitedMember(t *testing.T) {
	f := newFixture(t)
	cabinetID := newCabinet(t, f)
	ctx := context.Background()

	invited := &models.TeamMember{CabinetID: cabinetID, Contact: "anne@example.com", Role: models.RoleAssistant}
	require.NoError(t, f.store.Members().Create(ctx, invited))

	ident := identityFor("anne@example.com")
	id, err := f.reconcile.EnsureMembership(ctx, ident.UserID, ident, cabinetID, models.MemberFlags{})
	require.NoError(t, err)
	assert.Equal(t, invited.ID, id)

	member, err := f.store.Members().GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, member.UserID)
	assert.Equal(t, ident.UserID, *member.UserID)
	assert.Equal(t, models.RoleAssistant, member.Role)
	assert.False(t, member.IsAdmin)
}

func TestEnsureMembership_RecursionUsesPrivilegedInsertAndWelcomes(t *testing.T) {
	f := newFixture(t)
	f.members.createErr = errRecursion
	cabinetID := newCabinet(t, f)
	ident := identityFor("claire.martin@example.com")

	// No auth account yet: the privileged channel creates one.
	id, err := f.reconcile.EnsureMembership(context.Background(), uuid.Nil, ident, cabinetID,
		models.MemberFlags{Role: models.RoleSecretary})
	require.NoError(t, err)

	assert.Equal(t, []string{privileged.FunctionCreateTeamMember}, f.channel.Calls())
	assert.Equal(t, int32(1), f.members.creates.Load())

	member, err := f.store.Members().GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.RoleSecretary, member.Role)
	require.NotNil(t, member.UserID)

	select {
	case w := <-f.dispatcher.sent:
		assert.Equal(t, "claire.martin@example.com", w.Email)
		assert.Equal(t, "tmp-secret", w.TemporaryCredential)
		assert.Equal(t, "https://app.example.com/login", w.LoginURL)
	case <-time.After(time.Second):
		t.Fatal("welcome notification was not dispatched")
	}
}

func TestEnsureMembership_UnclassifiedSkipsPrivilegedAndRetriesDirect(t *testing.T) {
	f := newFixture(t)
	f.members.createErr = errBackendDown
	f.members.failCreates = 1
	cabinetID := newCabinet(t, f)
	ident := identityFor("jean.dupont@example.com")

	id, err := f.reconcile.EnsureMembership(context.Background(), ident.UserID, ident, cabinetID, models.MemberFlags{IsAdmin: true})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	assert.Empty(t, f.channel.Calls())
	assert.Equal(t, int32(2), f.members.creates.Load())
	assert.Equal(t, 1, f.store.CountMembers())
}

func TestEnsureMembership_DirectRetryAfterPrivilegedFailure(t *testing.T) {
	f := newFixture(t)
	f.members.createErr = errRecursion
	f.members.failCreates = 1
	f.channel.createMemberErr = errBackendDown
	cabinetID := newCabinet(t, f)
	ident := identityFor("jean.dupont@example.com")

	_, err := f.reconcile.EnsureMembership(context.Background(), ident.UserID, ident, cabinetID, models.MemberFlags{})
	require.NoError(t, err)

	assert.Equal(t, []string{privileged.FunctionCreateTeamMember}, f.channel.Calls())
	assert.Equal(t, int32(2), f.members.creates.Load())
}

func TestEnsureMembership_AllStrategiesFail(t *testing.T) {
	f := newFixture(t)
	f.members.createErr = errRecursion
	f.channel.createMemberErr = errBackendDown
	cabinetID := newCabinet(t, f)
	ident := identityFor("jean.dupont@example.com")

	id, err := f.reconcile.EnsureMembership(context.Background(), ident.UserID, ident, cabinetID, models.MemberFlags{})
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrMembershipCreationFailed)
	assert.Equal(t, uuid.Nil, id)
	assert.Equal(t, 0, f.store.CountMembers())
}

func TestEnsureMembership_UpdateRecursionUsesPrivilegedUpdate(t *testing.T) {
	f := newFixture(t)
	cabinetID := newCabinet(t, f)
	ident := identityFor("jean.dupont@example.com")
	ctx := context.Background()

	id, err := f.reconcile.EnsureMembership(ctx, ident.UserID, ident, cabinetID, models.MemberFlags{})
	require.NoError(t, err)

	f.members.updateErr = errRecursion
	again, err := f.reconcile.EnsureMembership(ctx, ident.UserID, ident, cabinetID, models.MemberFlags{IsAdmin: true, IsOwner: true})
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, []string{privileged.FunctionUpdateTeamMember}, f.channel.Calls())

	member, err := f.store.Members().GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, member.IsAdmin)
	assert.True(t, member.IsOwner)
}

func TestEnsureMembership_UpdateFailureKeepsMemberID(t *testing.T) {
	f := newFixture(t)
	cabinetID := newCabinet(t, f)
	ident := identityFor("jean.dupont@example.com")
	ctx := context.Background()

	id, err := f.reconcile.EnsureMembership(ctx, ident.UserID, ident, cabinetID, models.MemberFlags{})
	require.NoError(t, err)

	f.members.updateErr = errBackendDown
	again, err := f.reconcile.EnsureMembership(ctx, ident.UserID, ident, cabinetID, models.MemberFlags{IsAdmin: true})
	assert.ErrorIs(t, err, services.ErrMembershipUpdateFailed)
	assert.Equal(t, id, again)
	assert.Empty(t, f.channel.Calls(), "unclassified update failures do not use the privileged channel")
}

func TestEnsureMembership_VanishedMemberIsRecreated(t *testing.T) {
	f := newFixture(t)
	from := newCabinet(t, f)
	to := newCabinet(t, f)
	ident := identityFor("jean.dupont@example.com")
	ctx := context.Background()

	stale, err := f.reconcile.EnsureMembership(ctx, ident.UserID, ident, from, models.MemberFlags{})
	require.NoError(t, err)

	// The row is gone by the time the move is applied.
	f.members.updateErr = repository.ErrNotFound
	id, err := f.reconcile.EnsureMembership(ctx, ident.UserID, ident, to, models.MemberFlags{IsAdmin: true})
	require.NoError(t, err)
	assert.NotEqual(t, stale, id)
	assert.Equal(t, int32(2), f.members.creates.Load())

	member, err := f.store.Members().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, to, member.CabinetID)
	assert.True(t, member.IsAdmin)
}

func TestEnsureMembership_RequiresContactAndCabinet(t *testing.T) {
	f := newFixture(t)
	_, err := f.reconcile.EnsureMembership(context.Background(), uuid.New(), models.UserIdentity{}, uuid.New(), models.MemberFlags{})
	assert.ErrorIs(t, err, services.ErrInvalidRequest)

	_, err = f.reconcile.EnsureMembership(context.Background(), uuid.New(), identityFor("a@b.c"), uuid.Nil, models.MemberFlags{})
	assert.ErrorIs(t, err, services.ErrInvalidRequest)
}

func TestTeam_ListsOwnersFirst(t *testing.T) {
	f := newFixture(t)
	cabinetID := newCabinet(t, f)
	ctx := context.Background()

	assistant := identityFor("anne@example.com")
	owner := identityFor("jean@example.com")
	_, err := f.reconcile.EnsureMembership(ctx, assistant.UserID, assistant, cabinetID, models.MemberFlags{Role: models.RoleAssistant})
	require.NoError(t, err)
	_, err = f.reconcile.EnsureMembership(ctx, owner.UserID, owner, cabinetID, models.MemberFlags{IsAdmin: true, IsOwner: true})
	require.NoError(t, err)

	team, err := f.reconcile.Team(ctx, cabinetID)
	require.NoError(t, err)
	require.Len(t, team, 2)
	assert.Equal(t, "jean@example.com", team[0].Contact)
	assert.True(t, team[0].IsOwner)
}

package privileged_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/otcheredev/cabinet-bootstrap/internal/memstore"
	"github.com/otcheredev/cabinet-bootstrap/internal/models"
	"github.com/otcheredev/cabinet-bootstrap/internal/privileged"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuth struct {
	id    uuid.UUID
	calls int
}

func (s *stubAuth) EnsureUser(ctx context.Context, email, firstName, lastName string) (*privileged.AuthUser, error) {
	s.calls++
	return &privileged.AuthUser{ID: s.id, Email: email, TemporaryPassword: "one-time", Created: true}, nil
}

func TestDirect_CreateCabinetIsIdempotent(t *testing.T) {
	store := memstore.New()
	d := privileged.NewDirect(store.Cabinets(), store.Members(), nil)
	ctx := context.Background()
	owner := uuid.New()

	first, err := d.CreateCabinet(ctx, privileged.CabinetRequest{OwnerID: owner, Name: "Cabinet de Jean", City: "Paris"})
	require.NoError(t, err)
	second, err := d.CreateCabinet(ctx, privileged.CabinetRequest{OwnerID: owner, Name: "Other"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Cabinet de Jean", second.Name)
	assert.Equal(t, 1, store.CountCabinets())
}

func TestDirect_CreateCabinetRequiresOwnerAndName(t *testing.T) {
	d := privileged.NewDirect(memstore.New().Cabinets(), nil, nil)

	_, err := d.CreateCabinet(context.Background(), privileged.CabinetRequest{Name: "X"})
	assert.ErrorIs(t, err, privileged.ErrInvalidRequest)

	_, err = d.CreateCabinet(context.Background(), privileged.CabinetRequest{OwnerID: uuid.New(), Name: "  "})
	assert.ErrorIs(t, err, privileged.ErrInvalidRequest)
}

func TestDirect_CreateMemberCreatesAuthAccount(t *testing.T) {
	store := memstore.New()
	auth := &stubAuth{id: uuid.New()}
	d := privileged.NewDirect(store.Cabinets(), store.Members(), auth)
	cabinetID := uuid.New()

	res, err := d.CreateMember(context.Background(), privileged.MemberRequest{
		MemberData: privileged.MemberData{CabinetID: cabinetID, Role: models.RoleAssistant},
		Email:      "anne@example.com",
		FirstName:  "Anne",
		LastName:   "Martin",
		Origin:     "test",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, auth.calls)
	require.NotNil(t, res.AuthUserID)
	assert.Equal(t, auth.id, *res.AuthUserID)
	assert.Equal(t, "one-time", res.TemporaryCredential)
	assert.Equal(t, "anne@example.com", res.Member.Contact)
	assert.Equal(t, "Anne", res.Member.FirstName)
	require.NotNil(t, res.Member.UserID)
	assert.Equal(t, auth.id, *res.Member.UserID)
}

func TestDirect_CreateMemberWithKnownUserSkipsAuth(t *testing.T) {
	store := memstore.New()
	auth := &stubAuth{id: uuid.New()}
	d := privileged.NewDirect(store.Cabinets(), store.Members(), auth)
	userID := uuid.New()
	cabinetID := uuid.New()

	req := privileged.MemberRequest{
		MemberData: privileged.MemberData{CabinetID: cabinetID, Contact: "jean@example.com", IsAdmin: true, IsOwner: true},
		UserID:     &userID,
	}
	first, err := d.CreateMember(context.Background(), req)
	require.NoError(t, err)
	second, err := d.CreateMember(context.Background(), req)
	require.NoError(t, err)

	assert.Zero(t, auth.calls)
	assert.Nil(t, first.AuthUserID)
	assert.Equal(t, first.Member.ID, second.Member.ID)
	assert.Equal(t, 1, store.CountMembers())
	assert.True(t, second.Member.IsOwner)
}

func TestDirect_CreateMemberRequiresCabinetAndContact(t *testing.T) {
	store := memstore.New()
	d := privileged.NewDirect(store.Cabinets(), store.Members(), nil)

	_, err := d.CreateMember(context.Background(), privileged.MemberRequest{
		MemberData: privileged.MemberData{Contact: "jean@example.com"},
	})
	assert.ErrorIs(t, err, privileged.ErrInvalidRequest)

	_, err = d.CreateMember(context.Background(), privileged.MemberRequest{
		MemberData: privileged.MemberData{CabinetID: uuid.New()},
	})
	assert.ErrorIs(t, err, privileged.ErrInvalidRequest)
}

func TestDirect_UpdateMember(t *testing.T) {
	store := memstore.New()
	d := privileged.NewDirect(store.Cabinets(), store.Members(), nil)
	ctx := context.Background()

	member := &models.TeamMember{CabinetID: uuid.New(), Contact: "jean@example.com"}
	require.NoError(t, store.Members().Create(ctx, member))

	isAdmin := true
	updated, err := d.UpdateMember(ctx, privileged.UpdateMemberRequest{
		MemberID: member.ID,
		Update:   models.MemberUpdate{IsAdmin: &isAdmin},
	})
	require.NoError(t, err)
	assert.True(t, updated.IsAdmin)

	_, err = d.UpdateMember(ctx, privileged.UpdateMemberRequest{})
	assert.ErrorIs(t, err, privileged.ErrInvalidRequest)
}

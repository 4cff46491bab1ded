// Package memstore is an in-memory implementation of the repositories, used
// when STORE_DRIVER=memory and in tests. It enforces the same uniqueness rules
// as the Postgres schema and reports violations with the same SQLSTATE.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/otcheredev/cabinet-bootstrap/internal/models"
	"github.com/otcheredev/cabinet-bootstrap/internal/repository"
)

// Store holds all rows
type Store struct {
	mu       sync.RWMutex
	cabinets map[uuid.UUID]models.Cabinet
	members  map[uuid.UUID]models.TeamMember
	profiles map[uuid.UUID]models.Profile
	audit    []models.AuditLog
}

// New creates an empty store
func New() *Store {
	return &Store{
		cabinets: make(map[uuid.UUID]models.Cabinet),
		members:  make(map[uuid.UUID]models.TeamMember),
		profiles: make(map[uuid.UUID]models.Profile),
	}
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{
		Severity:       "ERROR",
		Code:           "23505",
		Message:        "duplicate key value violates unique constraint \"" + constraint + "\"",
		ConstraintName: constraint,
	}
}

func now() time.Time {
	return time.Now().UTC()
}

// Cabinets returns the cabinet repository view
func (s *Store) Cabinets() *CabinetRepository { return &CabinetRepository{s: s} }

// Members returns the team member repository view
func (s *Store) Members() *MemberRepository { return &MemberRepository{s: s} }

// Profiles returns the profile repository view
func (s *Store) Profiles() *ProfileRepository { return &ProfileRepository{s: s} }

// Audit returns the audit repository view
func (s *Store) Audit() *AuditRepository { return &AuditRepository{s: s} }

// CountCabinets returns the number of cabinet rows
func (s *Store) CountCabinets() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cabinets)
}

// CountMembers returns the number of team member rows
func (s *Store) CountMembers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members)
}

// CabinetRepository is the in-memory cabinet store
type CabinetRepository struct{ s *Store }

// FindByOwner retrieves the cabinet owned by ownerID
func (r *CabinetRepository) FindByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Cabinet, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, c := range r.s.cabinets {
		if c.OwnerID == ownerID {
			c := c
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

// GetByID retrieves a cabinet by ID
func (r *CabinetRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Cabinet, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.cabinets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

// Create inserts a cabinet
func (r *CabinetRepository) Create(ctx context.Context, cabinet *models.Cabinet) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.insertCabinet(cabinet)
}

func (s *Store) insertCabinet(cabinet *models.Cabinet) error {
	for _, c := range s.cabinets {
		if c.OwnerID == cabinet.OwnerID {
			return uniqueViolation("idx_cabinets_owner_id")
		}
	}
	if cabinet.ID == uuid.Nil {
		cabinet.ID = uuid.New()
	}
	if _, ok := s.cabinets[cabinet.ID]; ok {
		return uniqueViolation("cabinets_pkey")
	}
	if cabinet.Status == "" {
		cabinet.Status = models.CabinetStatusActive
	}
	ts := now()
	cabinet.CreatedAt, cabinet.UpdatedAt = ts, ts
	s.cabinets[cabinet.ID] = *cabinet
	return nil
}

// Update applies the non-empty fields to a cabinet
func (r *CabinetRepository) Update(ctx context.Context, id uuid.UUID, fields models.CabinetFields) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.cabinets[id]
	if !ok {
		return nil
	}
	if fields.Name != "" {
		c.Name = fields.Name
	}
	if fields.City != "" {
		c.City = fields.City
	}
	if fields.OpeningDate != nil {
		d := *fields.OpeningDate
		c.OpeningDate = &d
	}
	c.UpdatedAt = now()
	r.s.cabinets[id] = c
	return nil
}

// CreateViaProcedure mirrors create_cabinet_for_owner
func (r *CabinetRepository) CreateViaProcedure(ctx context.Context, ownerID uuid.UUID, name, city string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.cabinets {
		if c.OwnerID == ownerID {
			return nil
		}
	}
	return r.s.insertCabinet(&models.Cabinet{Name: name, City: city, OwnerID: ownerID})
}

// MemberRepository is the in-memory team member store
type MemberRepository struct{ s *Store }

func sameContact(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// FindByContact retrieves the oldest member with the given contact
func (r *MemberRepository) FindByContact(ctx context.Context, contact string) (*models.TeamMember, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var found *models.TeamMember
	for _, m := range r.s.members {
		if !sameContact(m.Contact, contact) {
			continue
		}
		if found == nil || m.CreatedAt.Before(found.CreatedAt) {
			m := m
			found = &m
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	return found, nil
}

// FindByCabinetAndContact retrieves a cabinet's member by contact
func (r *MemberRepository) FindByCabinetAndContact(ctx context.Context, cabinetID uuid.UUID, contact string) (*models.TeamMember, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, m := range r.s.members {
		if m.CabinetID == cabinetID && sameContact(m.Contact, contact) {
			m := m
			return &m, nil
		}
	}
	return nil, repository.ErrNotFound
}

// GetByCabinetID lists the members of a cabinet
func (r *MemberRepository) GetByCabinetID(ctx context.Context, cabinetID uuid.UUID) ([]models.TeamMember, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.TeamMember
	for _, m := range r.s.members {
		if m.CabinetID == cabinetID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsOwner != out[j].IsOwner {
			return out[i].IsOwner
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// GetByID retrieves a member by ID
func (r *MemberRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.TeamMember, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.members[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

// Create inserts a member
func (r *MemberRepository) Create(ctx context.Context, member *models.TeamMember) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.members {
		if m.CabinetID == member.CabinetID && sameContact(m.Contact, member.Contact) {
			return uniqueViolation("team_members_cabinet_contact_key")
		}
	}
	if member.ID == uuid.Nil {
		member.ID = uuid.New()
	}
	if member.Role == "" {
		member.Role = models.RoleDentist
	}
	ts := now()
	member.CreatedAt, member.UpdatedAt = ts, ts
	r.s.members[member.ID] = *member
	return nil
}

// Update applies a membership update
func (r *MemberRepository) Update(ctx context.Context, id uuid.UUID, u models.MemberUpdate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.members[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Apply(&m)
	for otherID, other := range r.s.members {
		if otherID != id && other.CabinetID == m.CabinetID && sameContact(other.Contact, m.Contact) {
			return uniqueViolation("team_members_cabinet_contact_key")
		}
	}
	r.s.members[id] = m
	return nil
}

// ProfileRepository is the in-memory profile store
type ProfileRepository struct{ s *Store }

// GetByID retrieves a profile
func (r *ProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.profiles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

// Upsert inserts a profile unless it exists
func (r *ProfileRepository) Upsert(ctx context.Context, profile *models.Profile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.profiles[profile.ID]; ok {
		return nil
	}
	ts := now()
	profile.CreatedAt, profile.UpdatedAt = ts, ts
	r.s.profiles[profile.ID] = *profile
	return nil
}

// UpdateNames sets a profile's names
func (r *ProfileRepository) UpdateNames(ctx context.Context, id uuid.UUID, firstName, lastName string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.profiles[id]
	if !ok {
		return nil
	}
	p.FirstName, p.LastName, p.UpdatedAt = firstName, lastName, now()
	r.s.profiles[id] = p
	return nil
}

// AuditRepository is the in-memory audit log
type AuditRepository struct{ s *Store }

// Create appends an audit entry
func (r *AuditRepository) Create(ctx context.Context, log *models.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	log.CreatedAt = now()
	r.s.audit = append(r.s.audit, *log)
	return nil
}

// GetByUserID lists a user's audit entries, newest first
func (r *AuditRepository) GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.AuditLog
	for i := len(r.s.audit) - 1; i >= 0; i-- {
		if r.s.audit[i].UserID == userID {
			out = append(out, r.s.audit[i])
		}
	}
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// Package store holds the credential and report stores. Patients and admins
// each get their own PrincipalStore; reports live in a single ReportStore.
package store

import (
	"context"
	"errors"

	"clinic-app-server/internal/models"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

// PrincipalStore persists one principal variant (patients or admins).
// Emails are normalized on every write and lookup.
type PrincipalStore interface {
	Role() models.Role
	Create(ctx context.Context, principal *models.Principal) error
	FindByID(ctx context.Context, id string) (*models.Principal, error)
	FindByEmail(ctx context.Context, email string) (*models.Principal, error)
	UpdatePhoto(ctx context.Context, id, photoURL string) (*models.Principal, error)
	List(ctx context.Context) ([]*models.Principal, error)
	Search(ctx context.Context, filter SearchFilter) ([]*models.Principal, error)
}

// ReportStore persists reports. Reports are never updated.
type ReportStore interface {
	Create(ctx context.Context, report *models.Report) error
	ListByPatient(ctx context.Context, patientID string) ([]*models.Report, error)
	ListAll(ctx context.Context) ([]*models.Report, error)
}

// Stores bundles the stores of one backend with its lifecycle hooks.
type Stores struct {
	Patients PrincipalStore
	Admins   PrincipalStore
	Reports  ReportStore

	migrate func(ctx context.Context) error
	close   func(ctx context.Context) error
}

// Accounts returns the principal store for role.
func (s *Stores) Accounts(role models.Role) PrincipalStore {
	if role == models.RoleAdmin {
		return s.Admins
	}
	return s.Patients
}

// Migrate creates tables or indexes for the backend.
func (s *Stores) Migrate(ctx context.Context) error {
	if s.migrate == nil {
		return nil
	}
	return s.migrate(ctx)
}

// Close releases the backend connection.
func (s *Stores) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

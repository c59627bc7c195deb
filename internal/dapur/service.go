package dapur

import (
	"context"
	"fmt"
	"strings"

	"github.com/sppi/sppi-po/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	List(ctx context.Context, filter ListFilter) ([]Dapur, error)
	Get(ctx context.Context, id int64) (Dapur, error)
	Create(ctx context.Context, d Dapur) (Dapur, error)
	Update(ctx context.Context, d Dapur) (Dapur, error)
	Delete(ctx context.Context, id int64) error
	CountPurchaseOrders(ctx context.Context, id int64) (int, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages kitchen master data.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService constructs the service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// List returns kitchens matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Dapur, error) {
	return s.repo.List(ctx, filter)
}

// Get returns a single kitchen.
func (s *Service) Get(ctx context.Context, id int64) (Dapur, error) {
	return s.repo.Get(ctx, id)
}

// RequireActive returns the kitchen when it exists and is active.
func (s *Service) RequireActive(ctx context.Context, id int64) (Dapur, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return Dapur{}, err
	}
	if !d.IsActive {
		return Dapur{}, fmt.Errorf("%w: dapur %s tidak aktif", shared.ErrValidation, d.KodeDapur)
	}
	return d, nil
}

// Create stores a new kitchen.
func (s *Service) Create(ctx context.Context, in Input) (Dapur, error) {
	d := fromInput(in)
	d.IsActive = in.IsActive == nil || *in.IsActive
	created, err := s.repo.Create(ctx, d)
	if err != nil {
		return Dapur{}, err
	}
	s.recordAudit(ctx, "DAPUR_CREATE", created.ID, map[string]any{"kode_dapur": created.KodeDapur})
	return created, nil
}

// Update edits a kitchen.
func (s *Service) Update(ctx context.Context, id int64, in Input) (Dapur, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Dapur{}, err
	}
	d := fromInput(in)
	d.ID = id
	d.IsActive = current.IsActive
	if in.IsActive != nil {
		d.IsActive = *in.IsActive
	}
	updated, err := s.repo.Update(ctx, d)
	if err != nil {
		return Dapur{}, err
	}
	s.recordAudit(ctx, "DAPUR_UPDATE", id, nil)
	return updated, nil
}

// Toggle flips the active flag.
func (s *Service) Toggle(ctx context.Context, id int64) (Dapur, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return Dapur{}, err
	}
	d.IsActive = !d.IsActive
	updated, err := s.repo.Update(ctx, d)
	if err != nil {
		return Dapur{}, err
	}
	s.recordAudit(ctx, "DAPUR_TOGGLE", id, map[string]any{"is_active": updated.IsActive})
	return updated, nil
}

// Delete removes a kitchen that no purchase order references.
func (s *Service) Delete(ctx context.Context, id int64) error {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	n, err := s.repo.CountPurchaseOrders(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: dapur %s masih digunakan oleh %d PO", shared.ErrConflict, d.KodeDapur, n)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, "DAPUR_DELETE", id, map[string]any{"kode_dapur": d.KodeDapur})
	return nil
}

func fromInput(in Input) Dapur {
	return Dapur{
		KodeDapur:  strings.ToUpper(strings.TrimSpace(in.KodeDapur)),
		NamaDapur:  strings.TrimSpace(in.NamaDapur),
		Lokasi:     strings.TrimSpace(in.Lokasi),
		PICName:    strings.TrimSpace(in.PICName),
		PICPhone:   strings.TrimSpace(in.PICPhone),
		Keterangan: strings.TrimSpace(in.Keterangan),
	}
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditEntry(0, action, "dapur", id, meta))
}

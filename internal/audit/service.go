package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sppi/sppi-po/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	// exportLimit caps the CSV export.
	exportLimit  = 5000
	maxDateRange = 90 * 24 * time.Hour
)

// Repository reads audit_logs.
type Repository interface {
	Window(ctx context.Context, q Query) ([]Entry, error)
}

// Service serves the audit timeline.
type Service struct {
	repo Repository
}

// NewService builds the timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page, fetching a single extra row to detect a next page.
func (s *Service) Timeline(ctx context.Context, f Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	if err := validateRange(f); err != nil {
		return Result{}, err
	}
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	q := toQuery(f)
	q.Offset = (page - 1) * pageSize
	q.Limit = pageSize + 1
	rows, err := s.repo.Window(ctx, q)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	if rows == nil {
		rows = []Entry{}
	}
	paging := Paging{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every matching row up to the export cap.
func (s *Service) Export(ctx context.Context, f Filters) ([]Entry, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	if err := validateRange(f); err != nil {
		return nil, err
	}
	q := toQuery(f)
	q.Limit = exportLimit
	return s.repo.Window(ctx, q)
}

func validateRange(f Filters) error {
	if f.From.IsZero() || f.To.IsZero() {
		return nil
	}
	if f.From.After(f.To) {
		return fmt.Errorf("%w: from harus sebelum to", shared.ErrValidation)
	}
	if f.To.Sub(f.From) > maxDateRange {
		return fmt.Errorf("%w: rentang tanggal maksimal 90 hari", shared.ErrValidation)
	}
	return nil
}

func toQuery(f Filters) Query {
	q := Query{
		From:   f.From,
		Actor:  strings.TrimSpace(f.Actor),
		Entity: strings.TrimSpace(f.Entity),
		Action: strings.ToUpper(strings.TrimSpace(f.Action)),
	}
	if !f.To.IsZero() {
		// To is a calendar day; include all of it.
		q.To = f.To.AddDate(0, 0, 1)
	}
	return q
}

package invoice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sppi/sppi-po/internal/attachment"
	"github.com/sppi/sppi-po/internal/dapur"
	"github.com/sppi/sppi-po/internal/shared"
)

// generateAttempts bounds retries when a concurrent generate wins the same
// sequence number or PO.
const generateAttempts = 3

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Invoice, error)
	ListItems(ctx context.Context, invoiceID int64) ([]Item, error)
	List(ctx context.Context, filter ListFilter) ([]Invoice, error)
	Candidates(ctx context.Context, p Period) ([]Candidate, error)
	SetPDFURL(ctx context.Context, id int64, url string) error
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	Candidates(ctx context.Context, p Period) ([]Candidate, error)
	NextSequence(ctx context.Context, year int) (int, error)
	Insert(ctx context.Context, inv *Invoice) error
	InsertItem(ctx context.Context, item *Item) error
	GetForUpdate(ctx context.Context, id int64) (Invoice, error)
	UpdateStatus(ctx context.Context, inv Invoice) error
	Delete(ctx context.Context, id int64) error
}

// DapurPort resolves the billed kitchen.
type DapurPort interface {
	Get(ctx context.Context, id int64) (dapur.Dapur, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// PDFRenderer turns an invoice into a PDF document.
type PDFRenderer interface {
	Render(ctx context.Context, inv Invoice) ([]byte, error)
}

// Enqueuer schedules background PDF rendering.
type Enqueuer interface {
	EnqueueInvoicePDF(ctx context.Context, invoiceID int64) error
}

// Metrics counts generated invoices.
type Metrics interface {
	ObserveInvoiceGenerated()
}

// Deps bundles the collaborators of Service. Only Repo is required.
type Deps struct {
	Repo     RepositoryPort
	Dapur    DapurPort
	Audit    AuditPort
	Renderer PDFRenderer
	Enqueuer Enqueuer
	Sink     attachment.Sink
	Metrics  Metrics
	Logger   *slog.Logger
}

// Service generates and settles invoices.
type Service struct {
	repo     RepositoryPort
	dapur    DapurPort
	audit    AuditPort
	renderer PDFRenderer
	enqueuer Enqueuer
	sink     attachment.Sink
	metrics  Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the invoice service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     deps.Repo,
		dapur:    deps.Dapur,
		audit:    deps.Audit,
		renderer: deps.Renderer,
		enqueuer: deps.Enqueuer,
		sink:     deps.Sink,
		metrics:  deps.Metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// List returns invoices, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: status %q tidak dikenal", shared.ErrValidation, filter.Status)
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.repo.List(ctx, filter)
}

// Get returns an invoice with its items.
func (s *Service) Get(ctx context.Context, id int64) (Invoice, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Items, err = s.repo.ListItems(ctx, id); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// Preview lists the POs Generate would bill, without writing.
func (s *Service) Preview(ctx context.Context, p Period) ([]Candidate, error) {
	if err := validatePeriod(p); err != nil {
		return nil, err
	}
	return s.repo.Candidates(ctx, p)
}

// Generate bills every completed, not yet invoiced PO of the kitchen in the period.
func (s *Service) Generate(ctx context.Context, actor shared.Principal, in GenerateInput) (Invoice, error) {
	if err := validatePeriod(in.Period); err != nil {
		return Invoice{}, err
	}
	if s.dapur != nil {
		if _, err := s.dapur.Get(ctx, in.DapurID); err != nil {
			return Invoice{}, err
		}
	}
	var (
		inv Invoice
		err error
	)
	for attempt := 1; attempt <= generateAttempts; attempt++ {
		inv, err = s.generate(ctx, actor, in)
		if !shared.IsRetryable(err) {
			break
		}
		s.logger.Warn("invoice generate collided, retrying", slog.Int("attempt", attempt), slog.Any("error", err))
	}
	if shared.IsRetryable(err) {
		return Invoice{}, fmt.Errorf("%w: invoice sedang dibuat oleh proses lain, silakan coba lagi", shared.ErrConflict)
	}
	if err != nil {
		return Invoice{}, err
	}
	if s.metrics != nil {
		s.metrics.ObserveInvoiceGenerated()
	}
	s.record(ctx, actor, "INVOICE_GENERATE", inv, map[string]any{
		"invoice_number": inv.InvoiceNumber,
		"total_pos":      len(inv.Items),
		"total_amount":   inv.TotalAmount.String(),
	})
	return inv, nil
}

func (s *Service) generate(ctx context.Context, actor shared.Principal, in GenerateInput) (Invoice, error) {
	now := s.now()
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		candidates, err := tx.Candidates(ctx, in.Period)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return fmt.Errorf("%w: tidak ada PO yang bisa di-invoice untuk periode ini", shared.ErrConflict)
		}
		seq, err := tx.NextSequence(ctx, now.Year())
		if err != nil {
			return err
		}
		total := decimal.Zero
		for _, c := range candidates {
			total = total.Add(c.TotalJual)
		}
		inv = Invoice{
			InvoiceNumber:  FormatNumber(seq, now),
			Year:           now.Year(),
			Seq:            seq,
			DapurID:        in.DapurID,
			TanggalInvoice: now,
			PeriodeStart:   in.Start,
			PeriodeEnd:     in.End,
			UpNama:         strings.TrimSpace(in.UpNama),
			TotalAmount:    total,
			Status:         StatusDraft,
			CreatedBy:      actor.UserID,
		}
		if err := tx.Insert(ctx, &inv); err != nil {
			return err
		}
		inv.Items = make([]Item, 0, len(candidates))
		for _, c := range candidates {
			item := Item{InvoiceID: inv.ID, POID: c.POID, PONumber: c.PONumber, TanggalPO: c.TanggalPO, Nominal: c.TotalJual}
			if err := tx.InsertItem(ctx, &item); err != nil {
				return err
			}
			inv.Items = append(inv.Items, item)
		}
		return nil
	})
	return inv, err
}

func validatePeriod(p Period) error {
	if p.DapurID <= 0 {
		return fmt.Errorf("%w: dapur_id, periode_start, dan periode_end wajib diisi", shared.ErrValidation)
	}
	if p.Start.IsZero() || p.End.IsZero() {
		return fmt.Errorf("%w: dapur_id, periode_start, dan periode_end wajib diisi", shared.ErrValidation)
	}
	if p.End.Before(p.Start) {
		return fmt.Errorf("%w: periode_end tidak boleh sebelum periode_start", shared.ErrValidation)
	}
	return nil
}

// Issue moves a DRAFT invoice to ISSUED.
func (s *Service) Issue(ctx context.Context, actor shared.Principal, id int64) (Invoice, error) {
	inv, err := s.update(ctx, id, func(inv *Invoice) error {
		if inv.Status != StatusDraft {
			return fmt.Errorf("%w: invoice tidak bisa di-issue. Status saat ini: %s", shared.ErrInvalidState, inv.Status)
		}
		now := s.now()
		inv.Status = StatusIssued
		inv.IssuedAt = &now
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.record(ctx, actor, "INVOICE_ISSUE", inv, nil)
	return inv, nil
}

// MarkPaid settles an invoice that is not yet PAID.
func (s *Service) MarkPaid(ctx context.Context, actor shared.Principal, id int64, in PaymentInput) (Invoice, error) {
	if in.SisaTagihan.IsNegative() {
		return Invoice{}, fmt.Errorf("%w: sisa_tagihan tidak boleh negatif", shared.ErrValidation)
	}
	inv, err := s.update(ctx, id, func(inv *Invoice) error {
		if inv.Status == StatusPaid {
			return fmt.Errorf("%w: invoice sudah lunas", shared.ErrInvalidState)
		}
		now := s.now()
		inv.Status = StatusPaid
		inv.PaidAt = &now
		inv.MetodePembayaran = strings.TrimSpace(in.MetodePembayaran)
		inv.SisaTagihan = decimal.NewNullDecimal(in.SisaTagihan)
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.record(ctx, actor, "INVOICE_PAY", inv, map[string]any{"metode_pembayaran": inv.MetodePembayaran})
	return inv, nil
}

// Delete removes a DRAFT invoice, releasing its POs for a later invoice.
func (s *Service) Delete(ctx context.Context, actor shared.Principal, id int64) error {
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != StatusDraft {
			return fmt.Errorf("%w: hanya invoice DRAFT yang dapat dihapus. Status saat ini: %s", shared.ErrInvalidState, inv.Status)
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actor, "INVOICE_DELETE", inv, map[string]any{"invoice_number": inv.InvoiceNumber})
	return nil
}

func (s *Service) update(ctx context.Context, id int64, mutate func(*Invoice) error) (Invoice, error) {
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := mutate(&inv); err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, inv)
	})
	return inv, err
}

// RenderPDF renders the invoice synchronously.
func (s *Service) RenderPDF(ctx context.Context, id int64) (Invoice, []byte, error) {
	if s.renderer == nil {
		return Invoice{}, nil, errors.New("invoice: pdf renderer not configured")
	}
	inv, err := s.Get(ctx, id)
	if err != nil {
		return Invoice{}, nil, err
	}
	pdf, err := s.renderer.Render(ctx, inv)
	if err != nil {
		return Invoice{}, nil, fmt.Errorf("render invoice %d: %w", id, err)
	}
	return inv, pdf, nil
}

// RequestPDF queues a background render of the invoice.
func (s *Service) RequestPDF(ctx context.Context, id int64) error {
	if s.enqueuer == nil {
		return errors.New("invoice: job queue not configured")
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	return s.enqueuer.EnqueueInvoicePDF(ctx, id)
}

// StorePDF renders the invoice, saves it through the sink and records its URL.
func (s *Service) StorePDF(ctx context.Context, id int64) (string, error) {
	if s.sink == nil {
		return "", errors.New("invoice: attachment sink not configured")
	}
	inv, pdf, err := s.RenderPDF(ctx, id)
	if err != nil {
		return "", err
	}
	name := strings.ReplaceAll(inv.InvoiceNumber, "/", "-") + ".pdf"
	url, err := s.sink.Save(ctx, attachment.FolderInvoices, attachment.Upload{
		Filename:    name,
		ContentType: "application/pdf",
		Size:        int64(len(pdf)),
		Body:        pdf,
	})
	if err != nil {
		return "", err
	}
	if err := s.repo.SetPDFURL(ctx, id, url); err != nil {
		return "", err
	}
	return url, nil
}

func (s *Service) record(ctx context.Context, actor shared.Principal, action string, inv Invoice, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(actor.UserID, action, "invoice", inv.ID, meta)); err != nil {
		s.logger.Warn("audit invoice", slog.String("action", action), slog.Any("error", err))
	}
}

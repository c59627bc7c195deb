package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sppi/sppi-po/internal/attachment"
	"github.com/sppi/sppi-po/internal/dapur"
	"github.com/sppi/sppi-po/internal/platform/cache"
	"github.com/sppi/sppi-po/internal/shared"
)

const approvalModule = "PO"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPO(ctx context.Context, id int64) (PurchaseOrder, error)
	ListItems(ctx context.Context, poID int64) ([]POItem, error)
	ListTransfers(ctx context.Context, poID int64) ([]Transfer, error)
	ListShoppingProofs(ctx context.Context, poID int64) ([]ShoppingProof, error)
	GetLegacyTransfer(ctx context.Context, poID int64) (*LegacyTransfer, error)
	ListPOs(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error)
	ListByStatus(ctx context.Context, q StatusQuery) ([]PurchaseOrder, error)
	Summary(ctx context.Context, day time.Time) (Summary, error)
	DailyCounts(ctx context.Context, since time.Time) ([]DailyCount, error)
	TopItems(ctx context.Context, since time.Time, limit int) ([]TopItem, error)
}

// DapurPort resolves the kitchen a PO is raised for.
type DapurPort interface {
	RequireActive(ctx context.Context, id int64) (dapur.Dapur, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalPort records the approval trail.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	EnsureSubmit(ctx context.Context, module string, ref uuid.UUID, actorID int64, note string) error
	List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error)
}

// IdempotencyPort guards replayed funding requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Deps bundles the collaborators of Service. Only Repo is required.
type Deps struct {
	Repo        RepositoryPort
	Dapur       DapurPort
	Sink        attachment.Sink
	Approvals   ApprovalPort
	Audit       AuditPort
	Idempotency IdempotencyPort
	Stats       *cache.Cache
	Observer    TransitionObserver
	Logger      *slog.Logger
}

// Service orchestrates the purchase order lifecycle.
type Service struct {
	repo        RepositoryPort
	dapur       DapurPort
	sink        attachment.Sink
	approvals   ApprovalPort
	audit       AuditPort
	idempotency IdempotencyPort
	stats       *cache.Cache
	observer    TransitionObserver
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the procurement service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        deps.Repo,
		dapur:       deps.Dapur,
		sink:        deps.Sink,
		approvals:   deps.Approvals,
		audit:       deps.Audit,
		idempotency: deps.Idempotency,
		stats:       deps.Stats,
		observer:    deps.Observer,
		logger:      logger,
		now:         time.Now,
	}
}

// CreateInput describes a new purchase order.
type CreateInput struct {
	TanggalPO    time.Time
	DapurID      *int64
	CatatanAdmin string
	Items        []CreateItemInput
}

// CreateItemInput describes one requested line.
type CreateItemInput struct {
	NamaBarang      string
	KategoriSayuran string
	QtyEstimasi     decimal.Decimal
	Satuan          string
	HargaEstimasi   decimal.Decimal
	EstimasiSusut   decimal.NullDecimal
	HargaModal      decimal.NullDecimal
}

// ProcessInput carries the manager's decision.
type ProcessInput struct {
	Approve        bool
	CatatanManajer string
	AdjustedPrices []AdjustedPrice
}

// AdjustedPrice is the sell unit price the manager sets for one item.
type AdjustedPrice struct {
	ItemID    int64
	HargaJual decimal.Decimal
}

// Create persists a DRAFT purchase order with its items.
func (s *Service) Create(ctx context.Context, actor shared.Principal, in CreateInput) (PurchaseOrder, error) {
	if err := validateCreate(in); err != nil {
		return PurchaseOrder{}, err
	}
	if in.DapurID != nil && s.dapur != nil {
		if _, err := s.dapur.RequireActive(ctx, *in.DapurID); err != nil {
			return PurchaseOrder{}, err
		}
	}
	now := s.now()
	po := PurchaseOrder{
		PONumber:     generatePONumber(now),
		TanggalPO:    in.TanggalPO,
		DapurID:      in.DapurID,
		CreatedBy:    actor.UserID,
		Status:       StatusDraft,
		CatatanAdmin: strings.TrimSpace(in.CatatanAdmin),
	}
	titler := cases.Title(language.Indonesian)
	items := make([]POItem, 0, len(in.Items))
	subtotals := make([]decimal.Decimal, 0, len(in.Items))
	for _, line := range in.Items {
		item := POItem{
			NamaBarang:       titler.String(strings.TrimSpace(line.NamaBarang)),
			KategoriSayuran:  strings.TrimSpace(line.KategoriSayuran),
			QtyEstimasi:      line.QtyEstimasi,
			Satuan:           strings.ToLower(strings.TrimSpace(line.Satuan)),
			HargaEstimasi:    line.HargaEstimasi,
			SubtotalEstimasi: lineTotal(line.QtyEstimasi, line.HargaEstimasi),
			EstimasiSusut:    line.EstimasiSusut,
			HargaModal:       line.HargaEstimasi,
		}
		if line.HargaModal.Valid {
			item.HargaModal = line.HargaModal.Decimal
		}
		item.TotalModal = lineTotal(item.QtyEstimasi, item.HargaModal)
		items = append(items, item)
		subtotals = append(subtotals, item.SubtotalEstimasi)
	}
	po.TotalEstimasi = sumDecimals(subtotals)

	err := s.withTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertPO(ctx, &po); err != nil {
			return err
		}
		for i := range items {
			items[i].POID = po.ID
			if err := tx.InsertItem(ctx, &items[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Items = items
	s.afterWrite(ctx, actor, "PO_CREATE", po, po.Status, map[string]any{"po_number": po.PONumber, "total_estimasi": po.TotalEstimasi.String()})
	return po, nil
}

func validateCreate(in CreateInput) error {
	if in.TanggalPO.IsZero() {
		return fmt.Errorf("%w: tanggal_po wajib diisi", shared.ErrValidation)
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: minimal 1 item diperlukan", shared.ErrValidation)
	}
	for i, line := range in.Items {
		switch {
		case strings.TrimSpace(line.NamaBarang) == "":
			return fmt.Errorf("%w: items[%d].nama_barang wajib diisi", shared.ErrValidation, i)
		case strings.TrimSpace(line.Satuan) == "":
			return fmt.Errorf("%w: items[%d].satuan wajib diisi", shared.ErrValidation, i)
		case !line.QtyEstimasi.IsPositive():
			return fmt.Errorf("%w: items[%d].qty_estimasi harus lebih dari 0", shared.ErrValidation, i)
		case !line.HargaEstimasi.IsPositive():
			return fmt.Errorf("%w: items[%d].harga_estimasi harus lebih dari 0", shared.ErrValidation, i)
		case line.HargaModal.Valid && line.HargaModal.Decimal.IsNegative():
			return fmt.Errorf("%w: items[%d].harga_modal tidak boleh negatif", shared.ErrValidation, i)
		case line.EstimasiSusut.Valid && line.EstimasiSusut.Decimal.IsNegative():
			return fmt.Errorf("%w: items[%d].estimasi_susut tidak boleh negatif", shared.ErrValidation, i)
		}
		if err := checkLineAmounts(i, line); err != nil {
			return err
		}
	}
	return nil
}

func checkLineAmounts(i int, line CreateItemInput) error {
	field := func(name string) string { return fmt.Sprintf("items[%d].%s", i, name) }
	if err := checkAmount(field("qty_estimasi"), line.QtyEstimasi, qtyScale, maxQty); err != nil {
		return err
	}
	if err := checkAmount(field("harga_estimasi"), line.HargaEstimasi, amountScale, maxPrice); err != nil {
		return err
	}
	if line.HargaModal.Valid {
		if err := checkAmount(field("harga_modal"), line.HargaModal.Decimal, amountScale, maxPrice); err != nil {
			return err
		}
	}
	if line.EstimasiSusut.Valid {
		return checkAmount(field("estimasi_susut"), line.EstimasiSusut.Decimal, susutScale, hundred)
	}
	return nil
}

// Submit moves the caller's DRAFT PO to MENUNGGU_APPROVAL.
func (s *Service) Submit(ctx context.Context, actor shared.Principal, id int64) (PurchaseOrder, error) {
	var (
		po   PurchaseOrder
		from POStatus
	)
	err := s.withTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetPOForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if po.CreatedBy != actor.UserID {
			return notFound(id)
		}
		if err := requireStatus(po, StatusDraft); err != nil {
			return err
		}
		if from, err = transition(&po, StatusWaitingApproval); err != nil {
			return err
		}
		return tx.UpdatePO(ctx, po)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	if s.approvals != nil {
		if err := s.approvals.EnsureSubmit(ctx, approvalModule, shared.ApprovalRef(approvalModule, po.ID), actor.UserID, fmt.Sprintf("PO %s submitted", po.PONumber)); err != nil {
			s.logger.Warn("record po submit approval", slog.Int64("po_id", po.ID), slog.Any("error", err))
		}
	}
	s.afterWrite(ctx, actor, "PO_SUBMIT", po, from, nil)
	return po, nil
}

// Process approves or rejects a PO awaiting approval. On approval every item
// is priced and the PO total is set in the same transaction.
func (s *Service) Process(ctx context.Context, actor shared.Principal, id int64, in ProcessInput) (PurchaseOrder, error) {
	for _, p := range in.AdjustedPrices {
		if p.ItemID <= 0 || !p.HargaJual.IsPositive() {
			return PurchaseOrder{}, fmt.Errorf("%w: adjusted_prices membutuhkan item_id dan harga_jual lebih dari 0", shared.ErrValidation)
		}
		if err := checkAmount(fmt.Sprintf("harga_jual item %d", p.ItemID), p.HargaJual, amountScale, maxPrice); err != nil {
			return PurchaseOrder{}, err
		}
	}
	var (
		po   PurchaseOrder
		from POStatus
	)
	now := s.now()
	err := s.withTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetPOForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := requireStatus(po, StatusWaitingApproval); err != nil {
			return err
		}
		target := StatusRejected
		if in.Approve {
			target = StatusApproved
		}
		if from, err = transition(&po, target); err != nil {
			return err
		}
		po.ApprovedBy = &actor.UserID
		po.ApprovedAt = &now
		po.CatatanManajer = strings.TrimSpace(in.CatatanManajer)
		if in.Approve {
			items, err := tx.ListItems(ctx, id)
			if err != nil {
				return err
			}
			priced, total, err := applyApproval(items, in.AdjustedPrices)
			if err != nil {
				return err
			}
			for _, item := range priced {
				if err := tx.UpdateItem(ctx, item); err != nil {
					return err
				}
			}
			po.TotalApproved = decimal.NewNullDecimal(total)
			po.Items = priced
		}
		return tx.UpdatePO(ctx, po)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	action := shared.ApprovalReject
	if in.Approve {
		action = shared.ApprovalApprove
	}
	if s.approvals != nil {
		if err := s.approvals.Record(ctx, shared.ApprovalLog{Module: approvalModule, RefID: shared.ApprovalRef(approvalModule, po.ID), ActorID: actor.UserID, Action: action, Note: po.CatatanManajer}); err != nil {
			s.logger.Warn("record po approval", slog.Int64("po_id", po.ID), slog.Any("error", err))
		}
	}
	s.afterWrite(ctx, actor, "PO_"+string(action), po, from, map[string]any{"total_approved": po.TotalApproved.Decimal.String()})
	return po, nil
}

// applyApproval prices every item. Items without an adjusted price sell at their estimate.
func applyApproval(items []POItem, adjusted []AdjustedPrice) ([]POItem, decimal.Decimal, error) {
	prices := make(map[int64]decimal.Decimal, len(adjusted))
	for _, p := range adjusted {
		prices[p.ItemID] = p.HargaJual
	}
	out := make([]POItem, 0, len(items))
	subtotals := make([]decimal.Decimal, 0, len(items))
	for _, item := range items {
		hargaJual, ok := prices[item.ID]
		if ok {
			delete(prices, item.ID)
		} else {
			hargaJual = item.HargaEstimasi
		}
		p := priceItem(item, hargaJual)
		item.HargaJual = decimal.NewNullDecimal(hargaJual)
		item.TotalHargaJual = decimal.NewNullDecimal(p.Subtotal)
		item.Profit = decimal.NewNullDecimal(p.Profit)
		item.Margin = decimal.NewNullDecimal(p.Margin)
		out = append(out, item)
		subtotals = append(subtotals, p.Subtotal)
	}
	for itemID := range prices {
		return nil, decimal.Zero, fmt.Errorf("%w: item %d bukan bagian dari PO ini", shared.ErrValidation, itemID)
	}
	return out, sumDecimals(subtotals), nil
}

// Delete removes the caller's DRAFT PO together with its items.
func (s *Service) Delete(ctx context.Context, actor shared.Principal, id int64) error {
	var po PurchaseOrder
	err := s.withTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetPOForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if po.CreatedBy != actor.UserID {
			return notFound(id)
		}
		if po.Status != StatusDraft {
			return fmt.Errorf("%w: hanya PO dengan status DRAFT yang dapat dihapus. Status saat ini: %s", shared.ErrInvalidState, po.Status)
		}
		return tx.DeletePO(ctx, id)
	})
	if err != nil {
		return err
	}
	s.afterWrite(ctx, actor, "PO_DELETE", po, po.Status, map[string]any{"po_number": po.PONumber})
	return nil
}

func (s *Service) afterWrite(ctx context.Context, actor shared.Principal, action string, po PurchaseOrder, from POStatus, meta map[string]any) {
	if err := s.stats.Bump(ctx); err != nil {
		s.logger.Warn("invalidate po stats", slog.Any("error", err))
	}
	if from != po.Status && s.observer != nil {
		s.observer.HandlePOTransition(ctx, TransitionEvent{POID: po.ID, PONumber: po.PONumber, From: from, To: po.Status, ActorID: actor.UserID, At: s.now()})
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditEntry(actor.UserID, action, "purchase_order", po.ID, meta)); err != nil {
			s.logger.Warn("audit po", slog.String("action", action), slog.Any("error", err))
		}
	}
}

// withTx runs fn through the repository and maps lock contention and
// column overflow onto the error taxonomy.
func (s *Service) withTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := s.repo.WithTx(ctx, fn)
	switch {
	case err == nil:
		return nil
	case shared.IsRetryable(err):
		return fmt.Errorf("%w: PO sedang diproses oleh pengguna lain, silakan coba lagi", shared.ErrConflict)
	case shared.IsNumericOverflow(err):
		return fmt.Errorf("%w: nilai melebihi batas yang dapat disimpan", shared.ErrValidation)
	}
	return err
}

func notFound(id int64) error {
	return fmt.Errorf("%w: PO %d tidak ditemukan", shared.ErrNotFound, id)
}

func generatePONumber(now time.Time) string {
	return fmt.Sprintf("PO-%s-%04d", now.Format("20060102"), rand.IntN(10000))
}

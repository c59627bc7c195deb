package procurement

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sppi/sppi-po/internal/attachment"
	"github.com/sppi/sppi-po/internal/shared"
)

type memoryRepo struct {
	pos       map[int64]PurchaseOrder
	items     map[int64][]POItem
	transfers map[int64][]Transfer
	proofs    map[int64][]ShoppingProof
	legacy    map[int64]LegacyTransfer
	nextID    int64

	// failItem, when set, is consulted by UpdateItem before writing.
	failItem func(POItem) error
	// commitErr is returned in place of a successful commit.
	commitErr error
}

type memoryState struct {
	pos       map[int64]PurchaseOrder
	items     map[int64][]POItem
	transfers map[int64][]Transfer
	proofs    map[int64][]ShoppingProof
	legacy    map[int64]LegacyTransfer
	nextID    int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		pos:       make(map[int64]PurchaseOrder),
		items:     make(map[int64][]POItem),
		transfers: make(map[int64][]Transfer),
		proofs:    make(map[int64][]ShoppingProof),
		legacy:    make(map[int64]LegacyTransfer),
	}
}

func (r *memoryRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func cloneLists[T any](m map[int64][]T) map[int64][]T {
	out := make(map[int64][]T, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

func (r *memoryRepo) snapshot() memoryState {
	return memoryState{
		pos:       maps.Clone(r.pos),
		items:     cloneLists(r.items),
		transfers: cloneLists(r.transfers),
		proofs:    cloneLists(r.proofs),
		legacy:    maps.Clone(r.legacy),
		nextID:    r.nextID,
	}
}

func (r *memoryRepo) restore(st memoryState) {
	r.pos, r.items, r.transfers, r.proofs, r.legacy, r.nextID = st.pos, st.items, st.transfers, st.proofs, st.legacy, st.nextID
}

// WithTx discards every write made by fn when fn or the commit fails.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	saved := r.snapshot()
	err := fn(ctx, &memoryTx{repo: r})
	if err == nil {
		err = r.commitErr
	}
	if err != nil {
		r.restore(saved)
	}
	return err
}

func (r *memoryRepo) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, ok := r.pos[id]
	if !ok {
		return PurchaseOrder{}, notFound(id)
	}
	return po, nil
}

func (r *memoryRepo) ListItems(ctx context.Context, poID int64) ([]POItem, error) {
	return append([]POItem(nil), r.items[poID]...), nil
}

func (r *memoryRepo) ListTransfers(ctx context.Context, poID int64) ([]Transfer, error) {
	return append([]Transfer(nil), r.transfers[poID]...), nil
}

func (r *memoryRepo) ListShoppingProofs(ctx context.Context, poID int64) ([]ShoppingProof, error) {
	return append([]ShoppingProof(nil), r.proofs[poID]...), nil
}

func (r *memoryRepo) GetLegacyTransfer(ctx context.Context, poID int64) (*LegacyTransfer, error) {
	t, ok := r.legacy[poID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *memoryRepo) ListPOs(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	var out []PurchaseOrder
	for _, po := range r.sorted() {
		if filter.Status != "" && po.Status != filter.Status {
			continue
		}
		if filter.CreatedBy != 0 && po.CreatedBy != filter.CreatedBy {
			continue
		}
		out = append(out, po)
	}
	total := len(out)
	start := (filter.Page - 1) * filter.Limit
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (r *memoryRepo) ListByStatus(ctx context.Context, q StatusQuery) ([]PurchaseOrder, error) {
	var out []PurchaseOrder
	for _, po := range r.sorted() {
		for _, s := range q.Statuses {
			if po.Status == s {
				out = append(out, po)
				break
			}
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *memoryRepo) Summary(ctx context.Context, day time.Time) (Summary, error) {
	var s Summary
	for _, po := range r.pos {
		if po.TanggalPO.Format(time.DateOnly) == day.Format(time.DateOnly) {
			s.Today++
		}
		switch po.Status {
		case StatusWaitingApproval:
			s.Pending++
		case StatusDraft, StatusRejected:
		default:
			s.Approved++
		}
	}
	return s, nil
}

func (r *memoryRepo) DailyCounts(ctx context.Context, since time.Time) ([]DailyCount, error) {
	return []DailyCount{}, nil
}

func (r *memoryRepo) TopItems(ctx context.Context, since time.Time, limit int) ([]TopItem, error) {
	return []TopItem{}, nil
}

func (r *memoryRepo) sorted() []PurchaseOrder {
	out := make([]PurchaseOrder, 0, len(r.pos))
	for _, po := range r.pos {
		out = append(out, po)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *memoryTx) GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	return t.repo.GetPO(ctx, id)
}

func (t *memoryTx) ListItems(ctx context.Context, poID int64) ([]POItem, error) {
	return t.repo.ListItems(ctx, poID)
}

func (t *memoryTx) InsertPO(ctx context.Context, po *PurchaseOrder) error {
	po.ID = t.repo.id()
	po.CreatedAt = time.Now()
	t.repo.pos[po.ID] = *po
	return nil
}

func (t *memoryTx) InsertItem(ctx context.Context, item *POItem) error {
	item.ID = t.repo.id()
	t.repo.items[item.POID] = append(t.repo.items[item.POID], *item)
	return nil
}

func (t *memoryTx) UpdatePO(ctx context.Context, po PurchaseOrder) error {
	if _, ok := t.repo.pos[po.ID]; !ok {
		return notFound(po.ID)
	}
	po.Items = nil
	t.repo.pos[po.ID] = po
	return nil
}

func (t *memoryTx) UpdateItem(ctx context.Context, item POItem) error {
	if t.repo.failItem != nil {
		if err := t.repo.failItem(item); err != nil {
			return err
		}
	}
	items := t.repo.items[item.POID]
	for i := range items {
		if items[i].ID == item.ID {
			items[i] = item
			return nil
		}
	}
	return fmt.Errorf("item %d not found", item.ID)
}

func (t *memoryTx) InsertTransfer(ctx context.Context, tr *Transfer) error {
	tr.ID = t.repo.id()
	t.repo.transfers[tr.POID] = append(t.repo.transfers[tr.POID], *tr)
	return nil
}

func (t *memoryTx) SumTransfers(ctx context.Context, poID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, tr := range t.repo.transfers[poID] {
		total = total.Add(tr.Amount)
	}
	return total, nil
}

func (t *memoryTx) InsertLegacyTransfer(ctx context.Context, lt *LegacyTransfer) error {
	lt.ID = t.repo.id()
	t.repo.legacy[lt.POID] = *lt
	return nil
}

func (t *memoryTx) InsertShoppingProof(ctx context.Context, p *ShoppingProof) error {
	p.ID = t.repo.id()
	t.repo.proofs[p.POID] = append(t.repo.proofs[p.POID], *p)
	return nil
}

func (t *memoryTx) DeletePO(ctx context.Context, id int64) error {
	delete(t.repo.pos, id)
	delete(t.repo.items, id)
	return nil
}

type memorySink struct {
	mu    sync.Mutex
	saved []string
	err   error
}

func (s *memorySink) Name() string { return "memory" }

func (s *memorySink) Save(ctx context.Context, folder string, up attachment.Upload) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := fmt.Sprintf("/uploads/%s/%d-%s", folder, len(s.saved), up.Filename)
	s.saved = append(s.saved, ref)
	return ref, nil
}

type memoryApprovals struct {
	logs []shared.ApprovalLog
}

func (m *memoryApprovals) Record(ctx context.Context, log shared.ApprovalLog) error {
	m.logs = append(m.logs, log)
	return nil
}

func (m *memoryApprovals) EnsureSubmit(ctx context.Context, module string, ref uuid.UUID, actorID int64, note string) error {
	for _, l := range m.logs {
		if l.Module == module && l.RefID == ref && l.Action == shared.ApprovalSubmit {
			return nil
		}
	}
	return m.Record(ctx, shared.ApprovalLog{Module: module, RefID: ref, ActorID: actorID, Action: shared.ApprovalSubmit, Note: note})
}

func (m *memoryApprovals) List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error) {
	var out []shared.ApprovalLog
	for _, l := range m.logs {
		if l.Module == module && l.RefID == ref {
			out = append(out, l)
		}
	}
	return out, nil
}

type memoryIdempotency struct {
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

type recordingObserver struct {
	events []TransitionEvent
}

func (o *recordingObserver) HandlePOTransition(_ context.Context, evt TransitionEvent) {
	o.events = append(o.events, evt)
}

var (
	admin    = shared.Principal{UserID: 1, Role: shared.RoleAdmin}
	manajer  = shared.Principal{UserID: 2, Role: shared.RoleManajer}
	keuangan = shared.Principal{UserID: 3, Role: shared.RoleKeuangan}
	lapangan = shared.Principal{UserID: 4, Role: shared.RoleLapangan}
)

type fixture struct {
	svc       *Service
	repo      *memoryRepo
	sink      *memorySink
	approvals *memoryApprovals
	observer  *recordingObserver
}

func newFixture() fixture {
	f := fixture{
		repo:      newMemoryRepo(),
		sink:      &memorySink{},
		approvals: &memoryApprovals{},
		observer:  &recordingObserver{},
	}
	f.svc = NewService(Deps{
		Repo:        f.repo,
		Sink:        f.sink,
		Approvals:   f.approvals,
		Idempotency: &memoryIdempotency{keys: map[string]bool{}},
		Observer:    f.observer,
	})
	f.svc.now = func() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC) }
	return f
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func item(name, qty, price string) CreateItemInput {
	return CreateItemInput{NamaBarang: name, QtyEstimasi: dec(qty), Satuan: "KG", HargaEstimasi: dec(price)}
}

func (f fixture) create(t *testing.T, items ...CreateItemInput) PurchaseOrder {
	t.Helper()
	po, err := f.svc.Create(context.Background(), admin, CreateInput{TanggalPO: f.svc.now(), Items: items})
	require.NoError(t, err)
	return po
}

func (f fixture) approved(t *testing.T, items ...CreateItemInput) PurchaseOrder {
	t.Helper()
	ctx := context.Background()
	po := f.create(t, items...)
	_, err := f.svc.Submit(ctx, admin, po.ID)
	require.NoError(t, err)
	po, err = f.svc.Process(ctx, manajer, po.ID, ProcessInput{Approve: true})
	require.NoError(t, err)
	return po
}

func (f fixture) status(t *testing.T, id int64) POStatus {
	t.Helper()
	po, err := f.repo.GetPO(context.Background(), id)
	require.NoError(t, err)
	return po.Status
}

func itemIDs(po PurchaseOrder) []int64 {
	ids := make([]int64, 0, len(po.Items))
	for _, it := range po.Items {
		ids = append(ids, it.ID)
	}
	return ids
}

func TestCreateComputesTotalEstimasi(t *testing.T) {
	f := newFixture()
	po := f.create(t, item("bayam hijau", "2", "10000"), item("WORTEL", "3.5", "5000"))

	require.Equal(t, StatusDraft, po.Status)
	require.Regexp(t, `^PO-20250314-\d{4}$`, po.PONumber)
	requireDecimal(t, "37500", po.TotalEstimasi)
	require.Len(t, po.Items, 2)
	require.Equal(t, "Bayam Hijau", po.Items[0].NamaBarang)
	require.Equal(t, "kg", po.Items[0].Satuan)
	requireDecimal(t, "20000", po.Items[0].SubtotalEstimasi)
	requireDecimal(t, "10000", po.Items[0].HargaModal)
	requireDecimal(t, "17500", po.Items[1].TotalModal)
}

func TestCreateUsesExplicitCostBasis(t *testing.T) {
	f := newFixture()
	line := item("tomat", "4", "8000")
	line.HargaModal = decimal.NewNullDecimal(dec("7000"))
	po := f.create(t, line)

	requireDecimal(t, "32000", po.TotalEstimasi)
	requireDecimal(t, "28000", po.Items[0].TotalModal)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	cases := map[string]CreateInput{
		"no items":       {TanggalPO: f.svc.now()},
		"no date":        {Items: []CreateItemInput{item("bayam", "1", "1")}},
		"zero qty":       {TanggalPO: f.svc.now(), Items: []CreateItemInput{item("bayam", "0", "1")}},
		"negative price": {TanggalPO: f.svc.now(), Items: []CreateItemInput{item("bayam", "1", "-5")}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, admin, in)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
	require.Empty(t, f.repo.pos)
}

func TestSubmitMovesDraftToWaitingApproval(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po := f.create(t, item("bayam", "1", "1000"))

	_, err := f.svc.Submit(ctx, shared.Principal{UserID: 99, Role: shared.RoleAdmin}, po.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	submitted, err := f.svc.Submit(ctx, admin, po.ID)
	require.NoError(t, err)
	require.Equal(t, StatusWaitingApproval, submitted.Status)

	_, err = f.svc.Submit(ctx, admin, po.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Contains(t, err.Error(), "Status saat ini: MENUNGGU_APPROVAL")
	require.Equal(t, StatusWaitingApproval, f.status(t, po.ID))

	trail, err := f.svc.ApprovalTrail(ctx, admin, po.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	require.Equal(t, shared.ApprovalSubmit, trail[0].Action)
	require.Len(t, f.observer.events, 1)
	require.Equal(t, StatusDraft, f.observer.events[0].From)
}

func TestProcessApprovePricesItems(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po := f.create(t, item("bayam", "10", "4"), item("wortel", "2", "15"))
	_, err := f.svc.Submit(ctx, admin, po.ID)
	require.NoError(t, err)

	approved, err := f.svc.Process(ctx, manajer, po.ID, ProcessInput{
		Approve:        true,
		CatatanManajer: "ok",
		AdjustedPrices: []AdjustedPrice{
			{ItemID: po.Items[0].ID, HargaJual: dec("5")},
			{ItemID: po.Items[1].ID, HargaJual: dec("20")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.True(t, approved.TotalApproved.Valid)
	requireDecimal(t, "90", approved.TotalApproved.Decimal)
	require.Equal(t, manajer.UserID, *approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)

	items, err := f.repo.ListItems(ctx, po.ID)
	require.NoError(t, err)
	requireDecimal(t, "50", items[0].TotalHargaJual.Decimal)
	requireDecimal(t, "10", items[0].Profit.Decimal)
	requireDecimal(t, "0.2", items[0].Margin.Decimal)
	requireDecimal(t, "40", items[1].TotalHargaJual.Decimal)
	requireDecimal(t, "10", items[1].Profit.Decimal)
	requireDecimal(t, "0.25", items[1].Margin.Decimal)
}

func TestProcessDefaultsMissingPricesToEstimate(t *testing.T) {
	f := newFixture()
	po := f.approved(t, item("bayam", "2", "3000"), item("wortel", "1", "4000"))

	requireDecimal(t, "10000", po.TotalApproved.Decimal)
	requireDecimal(t, "0", po.Items[0].Profit.Decimal)
}

func TestProcessRejectsForeignItem(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po := f.create(t, item("bayam", "1", "1000"))
	_, err := f.svc.Submit(ctx, admin, po.ID)
	require.NoError(t, err)

	_, err = f.svc.Process(ctx, manajer, po.ID, ProcessInput{
		Approve:        true,
		AdjustedPrices: []AdjustedPrice{{ItemID: 999, HargaJual: dec("1")}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Equal(t, StatusWaitingApproval, f.status(t, po.ID))
}

func TestProcessReject(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po := f.create(t, item("bayam", "1", "1000"))

	_, err := f.svc.Process(ctx, manajer, po.ID, ProcessInput{Approve: false})
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Equal(t, StatusDraft, f.status(t, po.ID))

	_, err = f.svc.Submit(ctx, admin, po.ID)
	require.NoError(t, err)
	rejected, err := f.svc.Process(ctx, manajer, po.ID, ProcessInput{Approve: false, CatatanManajer: "harga terlalu tinggi"})
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.False(t, rejected.TotalApproved.Valid)

	trail, err := f.svc.ApprovalTrail(ctx, manajer, po.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	require.Equal(t, shared.ApprovalReject, trail[1].Action)
	require.Equal(t, "harga terlalu tinggi", trail[1].Note)
}

func TestFundPartialThenFull(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po := f.approved(t, item("a", "1", "100"), item("b", "1", "100"), item("c", "1", "100"))
	ids := itemIDs(po)
	day := f.svc.now()

	partial, err := f.svc.Fund(ctx, keuangan, po.ID, FundInput{NominalTransfer: dec("200"), TanggalTransfer: day, ItemIDs: ids[:2]})
	require.NoError(t, err)
	require.Equal(t, StatusPartialTransfer, partial.Status)
	requireDecimal(t, "200", partial.NominalTransfer.Decimal)

	pending, err := f.svc.FinancePending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, 1, *pending[0].PendingItemsCount)

	full, err := f.svc.Fund(ctx, keuangan, po.ID, FundInput{NominalTransfer: dec("150"), TanggalTransfer: day, ItemIDs: ids[2:]})
	require.NoError(t, err)
	require.Equal(t, StatusApprovedKeuangan, full.Status)
	requireDecimal(t, "350", full.NominalTransfer.Decimal)
	require.Equal(t, keuangan.UserID, *full.ProcessedByKeuangan)
	require.Len(t, f.repo.transfers[po.ID], 2)

	_, err = f.svc.Fund(ctx, keuangan, po.ID, FundInput{NominalTransfer: dec("1"), TanggalTransfer: day, ItemIDs: ids[:1]})
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Equal(t, StatusApprovedKeuangan, f.status(t, po.ID))
}

func TestFundAllAtOnceStoresProof(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po := f.approved(t, item("a", "1", "100"), item("b", "1", "100"))

	funded, err := f.svc.Fund(ctx, keuangan, po.ID, FundInput{
		NominalTransfer: dec("200"),
		TanggalTransfer: f.svc.now(),
		ItemIDs:         itemIDs(po),
		Proof:           &attachment.Upload{Filename: "bukti.png"},
	})
	require.NoError(t, err)
	require.Equal(t, StatusApprovedKeuangan, funded.Status)
	require.Len(t, f.sink.saved, 1)
	require.Equal(t, f.sink.saved[0], f.repo.transfers[po.ID][0].ProofImage)
}

func TestFundRejectsInvalidItems(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po := f.approved(t, item("a", "1", "100"), item("b", "1", "100"))
	other := f.approved(t, item("x", "1", "100"))
	day := f.svc.now()

	_, err := f.svc.Fund(ctx, keuangan, po.ID, FundInput{NominalTransfer: dec("100"), TanggalTransfer: day})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.Fund(ctx, keuangan, po.ID, FundInput{NominalTransfer: dec("100"), TanggalTransfer: day, ItemIDs: itemIDs(other)})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Equal(t, StatusApproved, f.status(t, po.ID))
	require.Empty(t, f.repo.transfers[po.ID])

	ids := itemIDs(po)
	_, err = f.svc.Fund(ctx, keuangan, po.ID, FundInput{NominalTransfer: dec("100"), TanggalTransfer: day, ItemIDs: ids[:1]})
	require.NoError(t, err)
	_, err = f.svc.Fund(ctx, keuangan, po.ID, FundInput{NominalTransfer: dec("100"), TanggalTransfer: day, ItemIDs: ids[:1]})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Equal(t, StatusPartialTransfer, f.status(t, po.ID))
}

func TestFundReplayedIdempotencyKeyConflicts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po := f.approved(t, item("a", "1", "100"), item("b", "1", "100"))
	ids := itemIDs(po)
	in := FundInput{NominalTransfer: dec("100"), TanggalTransfer: f.svc.now(), ItemIDs: ids[:1], IdempotencyKey: "abc"}

	_, err := f.svc.Fund(ctx, keuangan, po.ID, in)
	require.NoError(t, err)
	_, err = f.svc.Fund(ctx, keuangan, po.ID, in)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Len(t, f.repo.transfers[po.ID], 1)
}

func TestFundReleasesKeyOnFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po := f.approved(t, item("a", "1", "100"))
	f.sink.err = errors.New("bucket offline")
	in := FundInput{
		NominalTransfer: dec("100"),
		TanggalTransfer: f.svc.now(),
		ItemIDs:         itemIDs(po),
		IdempotencyKey:  "retry-me",
		Proof:           &attachment.Upload{Filename: "bukti.pdf"},
	}

	_, err := f.svc.Fund(ctx, keuangan, po.ID, in)
	require.Error(t, err)
	require.Equal(t, StatusApproved, f.status(t, po.ID))

	f.sink.err = nil
	funded, err := f.svc.Fund(ctx, keuangan, po.ID, in)
	require.NoError(t, err)
	require.Equal(t, StatusApprovedKeuangan, funded.Status)
}

func TestLegacyTransfer(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po := f.approved(t, item("a", "1", "100"))
	in := LegacyTransferInput{NominalTransfer: dec("100"), TanggalTransfer: f.svc.now(), MetodeTransfer: "BCA"}

	_, err := f.svc.LegacyTransfer(ctx, keuangan, po.ID, in)
	require.ErrorIs(t, err, shared.ErrValidation)

	in.Proof = &attachment.Upload{Filename: "bukti.jpg"}
	done, err := f.svc.LegacyTransfer(ctx, keuangan, po.ID, in)
	require.NoError(t, err)
	require.Equal(t, StatusDanaDitransfer, done.Status)
	require.Equal(t, keuangan.UserID, *done.TransferredBy)

	got, err := f.svc.Get(ctx, manajer, po.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LegacyTransfer)
	require.Equal(t, "BCA", got.LegacyTransfer.MetodeTransfer)

	_, err = f.svc.LegacyTransfer(ctx, keuangan, po.ID, in)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestCompleteShoppingComputesVariance(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po := f.approved(t, item("a", "10", "10"), item("b", "2", "50"))
	ids := itemIDs(po)
	_, err := f.svc.Fund(ctx, keuangan, po.ID, FundInput{NominalTransfer: dec("200"), TanggalTransfer: f.svc.now(), ItemIDs: ids})
	require.NoError(t, err)

	done, err := f.svc.CompleteShopping(ctx, lapangan, po.ID, CompleteInput{
		RealPrices: []RealItemInput{
			{ItemID: ids[0], HargaReal: dec("12")},
			{ItemID: ids[1], QtyReal: decimal.NewNullDecimal(dec("2")), HargaReal: dec("45")},
		},
		Proofs: map[int64]attachment.Upload{ids[0]: {Filename: "nota.jpg"}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusBelanjaSelesai, done.Status)
	requireDecimal(t, "210", done.TotalReal.Decimal)
	require.Equal(t, lapangan.UserID, *done.ShoppingCompletedBy)

	items, err := f.repo.ListItems(ctx, po.ID)
	require.NoError(t, err)
	requireDecimal(t, "120", items[0].SubtotalReal.Decimal)
	requireDecimal(t, "20", items[0].SelisihPersen.Decimal)
	requireDecimal(t, "-10", items[1].SelisihPersen.Decimal)
	require.NotEmpty(t, items[0].BuktiFoto)
	require.Empty(t, items[1].BuktiFoto)

	_, err = f.svc.CompleteShopping(ctx, lapangan, po.ID, CompleteInput{RealPrices: []RealItemInput{{ItemID: ids[0], HargaReal: dec("1")}}})
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestCompleteShoppingRequiresFunding(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po := f.approved(t, item("a", "1", "10"))

	_, err := f.svc.CompleteShopping(ctx, lapangan, po.ID, CompleteInput{RealPrices: []RealItemInput{{ItemID: po.Items[0].ID, HargaReal: dec("10")}}})
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Equal(t, StatusApproved, f.status(t, po.ID))
}

func TestCompleteShoppingRejectsForeignProof(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po := f.approved(t, item("a", "1", "10"))
	_, err := f.svc.Fund(ctx, keuangan, po.ID, FundInput{NominalTransfer: dec("10"), TanggalTransfer: f.svc.now(), ItemIDs: itemIDs(po)})
	require.NoError(t, err)

	_, err = f.svc.CompleteShopping(ctx, lapangan, po.ID, CompleteInput{
		RealPrices: []RealItemInput{{ItemID: po.Items[0].ID, HargaReal: dec("10")}},
		Proofs:     map[int64]attachment.Upload{4242: {Filename: "nota.jpg"}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, f.sink.saved)
	require.Equal(t, StatusApprovedKeuangan, f.status(t, po.ID))
}

func TestUpdateShoppingItemsAndProofs(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po := f.approved(t, item("a", "5", "20"))
	in := LegacyTransferInput{NominalTransfer: dec("100"), TanggalTransfer: f.svc.now(), Proof: &attachment.Upload{Filename: "tf.png"}}
	_, err := f.svc.LegacyTransfer(ctx, keuangan, po.ID, in)
	require.NoError(t, err)

	_, err = f.svc.UpdateShoppingItems(ctx, lapangan, po.ID, ShoppingUpdateInput{
		Items: []RealItemInput{{ItemID: po.Items[0].ID, HargaReal: dec("22")}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	updated, err := f.svc.UpdateShoppingItems(ctx, lapangan, po.ID, ShoppingUpdateInput{
		Items:           []RealItemInput{{ItemID: po.Items[0].ID, QtyReal: decimal.NewNullDecimal(dec("5")), HargaReal: dec("22")}},
		CatatanLapangan: "harga naik",
	})
	require.NoError(t, err)
	require.Equal(t, StatusDanaDitransfer, updated.Status)
	requireDecimal(t, "110", updated.Items[0].SubtotalReal.Decimal)
	requireDecimal(t, "10", updated.Items[0].SelisihPersen.Decimal)

	files := make([]attachment.Upload, MaxShoppingProofs+1)
	_, err = f.svc.UploadShoppingProofs(ctx, lapangan, po.ID, ProofInput{Files: files})
	require.ErrorIs(t, err, shared.ErrValidation)

	proofs, err := f.svc.UploadShoppingProofs(ctx, lapangan, po.ID, ProofInput{
		Files: []attachment.Upload{{Filename: "1.jpg"}, {Filename: "2.pdf"}},
	})
	require.NoError(t, err)
	require.Len(t, proofs, 2)
	require.Len(t, f.repo.proofs[po.ID], 2)
}

func TestDeleteOnlyDraft(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	draft := f.create(t, item("a", "1", "10"))
	submitted := f.create(t, item("b", "1", "10"))
	_, err := f.svc.Submit(ctx, admin, submitted.ID)
	require.NoError(t, err)

	err = f.svc.Delete(ctx, admin, submitted.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Equal(t, StatusWaitingApproval, f.status(t, submitted.ID))

	require.NoError(t, f.svc.Delete(ctx, admin, draft.ID))
	_, err = f.svc.Get(ctx, admin, draft.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, f.repo.items[draft.ID])
}

func TestAdminOnlySeesOwnPOs(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	mine := f.create(t, item("a", "1", "10"))
	otherAdmin := shared.Principal{UserID: 7, Role: shared.RoleAdmin}
	theirs, err := f.svc.Create(ctx, otherAdmin, CreateInput{TanggalPO: f.svc.now(), Items: []CreateItemInput{item("b", "1", "10")}})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, admin, theirs.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.svc.Get(ctx, manajer, theirs.ID)
	require.NoError(t, err)

	pos, page, err := f.svc.List(ctx, admin, ListFilter{})
	require.NoError(t, err)
	require.Len(t, pos, 1)
	require.Equal(t, mine.ID, pos[0].ID)
	require.Equal(t, 1, page.Total)

	pos, _, err = f.svc.List(ctx, manajer, ListFilter{})
	require.NoError(t, err)
	require.Len(t, pos, 2)

	_, _, err = f.svc.List(ctx, manajer, ListFilter{Status: "BOGUS"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestStatsWithoutCache(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.create(t, item("a", "1", "10"))
	f.approved(t, item("b", "1", "10"))

	s, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, Summary{Today: 2, Pending: 0, Approved: 1}, s)
	require.NoError(t, f.svc.WarmStats(ctx))
}

func TestTransitionTableIsForwardOnly(t *testing.T) {
	require.True(t, CanTransition(StatusApproved, StatusDanaDitransfer))
	require.True(t, CanTransition(StatusPartialTransfer, StatusPartialTransfer))
	require.False(t, CanTransition(StatusApproved, StatusDraft))
	require.False(t, CanTransition(StatusRejected, StatusWaitingApproval))
	require.False(t, CanTransition(StatusBelanjaSelesai, StatusClosed))
	for _, s := range Statuses {
		require.False(t, CanTransition(s, StatusDraft), "nothing returns to DRAFT from %s", s)
	}
}

func TestSelisihPersenGuardsZeroEstimate(t *testing.T) {
	pct, ok := selisihPersen(dec("100"), dec("120"))
	require.True(t, ok)
	requireDecimal(t, "20", pct)

	_, ok = selisihPersen(decimal.Zero, dec("5"))
	require.False(t, ok)
}

func failOnItem(id int64) func(POItem) error {
	return func(it POItem) error {
		if it.ID == id {
			return errors.New("write po_items: connection reset")
		}
		return nil
	}
}

func TestProcessApprovalIsAllOrNothing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po := f.create(t, item("bayam", "2", "10"), item("wortel", "3", "20"))
	_, err := f.svc.Submit(ctx, admin, po.ID)
	require.NoError(t, err)
	f.repo.failItem = failOnItem(po.Items[1].ID)

	_, err = f.svc.Process(ctx, manajer, po.ID, ProcessInput{Approve: true})
	require.Error(t, err)

	stored, err := f.repo.GetPO(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, StatusWaitingApproval, stored.Status)
	require.False(t, stored.TotalApproved.Valid)
	require.Nil(t, stored.ApprovedBy)
	items, err := f.repo.ListItems(ctx, po.ID)
	require.NoError(t, err)
	for _, it := range items {
		require.False(t, it.HargaJual.Valid, "item %d priced", it.ID)
		require.False(t, it.Margin.Valid)
	}
	require.Len(t, f.approvals.logs, 1)
	require.Len(t, f.observer.events, 1)

	f.repo.failItem = nil
	approved, err := f.svc.Process(ctx, manajer, po.ID, ProcessInput{Approve: true})
	require.NoError(t, err)
	requireDecimal(t, "80", approved.TotalApproved.Decimal)
}

func TestFundRollsBackOnItemFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po := f.approved(t, item("a", "1", "100"), item("b", "1", "100"))
	ids := itemIDs(po)
	f.repo.failItem = failOnItem(ids[1])

	_, err := f.svc.Fund(ctx, keuangan, po.ID, FundInput{NominalTransfer: dec("200"), TanggalTransfer: f.svc.now(), ItemIDs: ids})
	require.Error(t, err)

	require.Equal(t, StatusApproved, f.status(t, po.ID))
	require.Empty(t, f.repo.transfers[po.ID])
	items, err := f.repo.ListItems(ctx, po.ID)
	require.NoError(t, err)
	for _, it := range items {
		require.Nil(t, it.TransferID)
	}
}

func TestCompleteShoppingRollsBackOnItemFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po := f.approved(t, item("a", "1", "10"), item("b", "1", "10"))
	ids := itemIDs(po)
	_, err := f.svc.Fund(ctx, keuangan, po.ID, FundInput{NominalTransfer: dec("20"), TanggalTransfer: f.svc.now(), ItemIDs: ids})
	require.NoError(t, err)
	f.repo.failItem = failOnItem(ids[1])

	_, err = f.svc.CompleteShopping(ctx, lapangan, po.ID, CompleteInput{RealPrices: []RealItemInput{
		{ItemID: ids[0], HargaReal: dec("11")},
		{ItemID: ids[1], HargaReal: dec("12")},
	}})
	require.Error(t, err)

	stored, err := f.repo.GetPO(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApprovedKeuangan, stored.Status)
	require.False(t, stored.TotalReal.Valid)
	items, err := f.repo.ListItems(ctx, po.ID)
	require.NoError(t, err)
	require.False(t, items[0].SubtotalReal.Valid)
	require.False(t, items[0].SelisihPersen.Valid)
}

func TestTxErrorsMapToTaxonomy(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po := f.create(t, item("a", "1", "10"))

	f.repo.commitErr = &pgconn.PgError{Code: shared.SerializationFailure}
	_, err := f.svc.Submit(ctx, admin, po.ID)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, StatusDraft, f.status(t, po.ID))

	f.repo.commitErr = fmt.Errorf("update: %w", &pgconn.PgError{Code: shared.NumericOutOfRange})
	_, err = f.svc.Submit(ctx, admin, po.ID)
	require.ErrorIs(t, err, shared.ErrValidation)

	f.repo.commitErr = errors.New("connection refused")
	_, err = f.svc.Submit(ctx, admin, po.ID)
	require.Error(t, err)
	require.NotErrorIs(t, err, shared.ErrConflict)
	require.NotErrorIs(t, err, shared.ErrValidation)
}

func TestCreateRejectsUnstorableAmounts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	susut := item("bayam", "1", "10")
	susut.EstimasiSusut = decimal.NewNullDecimal(dec("0.12345"))
	modal := item("bayam", "1", "10")
	modal.HargaModal = decimal.NewNullDecimal(dec("9.999"))
	cases := map[string]CreateItemInput{
		"qty rounds to zero": item("bayam", "0.0004", "10"),
		"qty too large":      item("bayam", "1000000", "10"),
		"price sub-cent":     item("bayam", "1", "1.005"),
		"price too large":    item("bayam", "1", "1000000000"),
		"susut scale":        susut,
		"modal scale":        modal,
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, admin, CreateInput{TanggalPO: f.svc.now(), Items: []CreateItemInput{line}})
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
	require.Empty(t, f.repo.pos)
}

func TestProcessAcceptsLossMakingPrice(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	line := item("cabai", "1", "10000")
	po := f.create(t, line)
	_, err := f.svc.Submit(ctx, admin, po.ID)
	require.NoError(t, err)

	_, err = f.svc.Process(ctx, manajer, po.ID, ProcessInput{Approve: true, AdjustedPrices: []AdjustedPrice{{ItemID: po.Items[0].ID, HargaJual: dec("5.001")}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	approved, err := f.svc.Process(ctx, manajer, po.ID, ProcessInput{Approve: true, AdjustedPrices: []AdjustedPrice{{ItemID: po.Items[0].ID, HargaJual: dec("5")}}})
	require.NoError(t, err)
	requireDecimal(t, "-9995", approved.Items[0].Profit.Decimal)
	requireDecimal(t, "-1999", approved.Items[0].Margin.Decimal)
}

func TestRealPricesRejectUnstorableAmounts(t *testing.T) {
	require.ErrorIs(t, validateReal(RealItemInput{ItemID: 1, HargaReal: dec("1.001")}, false), shared.ErrValidation)
	require.ErrorIs(t, validateReal(RealItemInput{ItemID: 1, QtyReal: decimal.NewNullDecimal(dec("0.0001")), HargaReal: dec("1")}, false), shared.ErrValidation)
	require.NoError(t, validateReal(RealItemInput{ItemID: 1, QtyReal: decimal.NewNullDecimal(dec("0.001")), HargaReal: dec("0.01")}, true))

	it := POItem{SubtotalEstimasi: dec("10")}
	applyReal(&it, dec("1"), dec("15000"))
	requireDecimal(t, "149900", it.SelisihPersen.Decimal)
}

func TestHeaderTotalsMatchStoredLines(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po := f.create(t, item("a", "1.005", "1"), item("b", "1.005", "1"))

	items, err := f.repo.ListItems(ctx, po.ID)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, it := range items {
		requireDecimal(t, "1.01", it.SubtotalEstimasi)
		sum = sum.Add(it.SubtotalEstimasi)
	}
	requireDecimal(t, sum.String(), po.TotalEstimasi)

	_, err = f.svc.Submit(ctx, admin, po.ID)
	require.NoError(t, err)
	approved, err := f.svc.Process(ctx, manajer, po.ID, ProcessInput{Approve: true})
	require.NoError(t, err)
	requireDecimal(t, "2.02", approved.TotalApproved.Decimal)
}

func TestUpdateShoppingItemsStoresTanggalBelanja(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po := f.approved(t, item("a", "1", "10"))
	_, err := f.svc.Fund(ctx, keuangan, po.ID, FundInput{NominalTransfer: dec("10"), TanggalTransfer: f.svc.now(), ItemIDs: itemIDs(po)})
	require.NoError(t, err)

	day := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	_, err = f.svc.UpdateShoppingItems(ctx, lapangan, po.ID, ShoppingUpdateInput{
		Items:          []RealItemInput{{ItemID: po.Items[0].ID, QtyReal: decimal.NewNullDecimal(dec("1")), HargaReal: dec("9")}},
		TanggalBelanja: day,
	})
	require.NoError(t, err)

	stored, err := f.repo.GetPO(ctx, po.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.TanggalBelanja)
	require.True(t, day.Equal(*stored.TanggalBelanja))
}

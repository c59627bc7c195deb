package procurement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/sppi/sppi-po/internal/attachment"
	"github.com/sppi/sppi-po/internal/shared"
)

// RealItemInput records what was actually bought for one item.
type RealItemInput struct {
	ItemID    int64
	QtyReal   decimal.NullDecimal
	HargaReal decimal.Decimal
}

// ShoppingUpdateInput updates real quantities and prices without completing.
type ShoppingUpdateInput struct {
	Items           []RealItemInput
	TanggalBelanja  time.Time
	CatatanLapangan string
}

// ProofInput carries shopping receipts.
type ProofInput struct {
	Files          []attachment.Upload
	TanggalBelanja *time.Time
	Keterangan     string
}

// CompleteInput closes the shopping phase. Proofs are keyed by item id.
type CompleteInput struct {
	RealPrices []RealItemInput
	Proofs     map[int64]attachment.Upload
}

// MaxShoppingProofs bounds one proof upload request.
const MaxShoppingProofs = 5

// UpdateShoppingItems records real quantities and prices without completing the PO.
func (s *Service) UpdateShoppingItems(ctx context.Context, actor shared.Principal, id int64, in ShoppingUpdateInput) (PurchaseOrder, error) {
	if len(in.Items) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: minimal 1 item diperlukan", shared.ErrValidation)
	}
	for _, item := range in.Items {
		if err := validateReal(item, true); err != nil {
			return PurchaseOrder{}, err
		}
	}
	var po PurchaseOrder
	err := s.withTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetPOForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := requireStatus(po, StatusDanaDitransfer, StatusApprovedKeuangan); err != nil {
			return err
		}
		items, err := tx.ListItems(ctx, id)
		if err != nil {
			return err
		}
		updated, err := applyRealPrices(items, in.Items, nil)
		if err != nil {
			return err
		}
		for _, idx := range updated {
			if err := tx.UpdateItem(ctx, items[idx]); err != nil {
				return err
			}
		}
		po.Items = items
		changed := false
		if note := strings.TrimSpace(in.CatatanLapangan); note != "" {
			po.CatatanLapangan = note
			changed = true
		}
		if !in.TanggalBelanja.IsZero() {
			tanggal := in.TanggalBelanja
			po.TanggalBelanja = &tanggal
			changed = true
		}
		if !changed {
			return nil
		}
		return tx.UpdatePO(ctx, po)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.afterWrite(ctx, actor, "PO_SHOPPING_UPDATE", po, po.Status, map[string]any{"items": len(in.Items)})
	return po, nil
}

// UploadShoppingProofs stores 1 to MaxShoppingProofs receipts for a PO in the shopping phase.
func (s *Service) UploadShoppingProofs(ctx context.Context, actor shared.Principal, id int64, in ProofInput) ([]ShoppingProof, error) {
	if len(in.Files) == 0 {
		return nil, fmt.Errorf("%w: minimal 1 bukti belanja harus di-upload", shared.ErrValidation)
	}
	if len(in.Files) > MaxShoppingProofs {
		return nil, fmt.Errorf("%w: maksimal %d bukti belanja per upload", shared.ErrValidation, MaxShoppingProofs)
	}
	current, err := s.repo.GetPO(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(current, StatusApprovedKeuangan, StatusDanaDitransfer, StatusBelanjaSelesai); err != nil {
		return nil, err
	}
	refs := make([]string, len(in.Files))
	g, gctx := errgroup.WithContext(ctx)
	for i, file := range in.Files {
		g.Go(func() error {
			ref, err := s.save(gctx, attachment.FolderShopping, file)
			if err != nil {
				return err
			}
			refs[i] = ref
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	proofs := make([]ShoppingProof, 0, len(refs))
	err = s.withTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, ref := range refs {
			proof := ShoppingProof{
				POID:           id,
				BuktiPath:      ref,
				TanggalBelanja: in.TanggalBelanja,
				Keterangan:     strings.TrimSpace(in.Keterangan),
				UploadedBy:     actor.UserID,
			}
			if err := tx.InsertShoppingProof(ctx, &proof); err != nil {
				return err
			}
			proofs = append(proofs, proof)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx, actor, "PO_SHOPPING_PROOF", current, current.Status, map[string]any{"files": len(refs)})
	return proofs, nil
}

// CompleteShopping records real prices, stores per-item proofs and moves the PO to BELANJA_SELESAI.
func (s *Service) CompleteShopping(ctx context.Context, actor shared.Principal, id int64, in CompleteInput) (PurchaseOrder, error) {
	if len(in.RealPrices) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: real_prices harus berisi minimal 1 item", shared.ErrValidation)
	}
	for _, rp := range in.RealPrices {
		if err := validateReal(rp, false); err != nil {
			return PurchaseOrder{}, err
		}
	}
	current, err := s.repo.GetPO(ctx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if err := requireStatus(current, StatusApprovedKeuangan, StatusDanaDitransfer); err != nil {
		return PurchaseOrder{}, err
	}
	items, err := s.repo.ListItems(ctx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	owned := make(map[int64]bool, len(items))
	for _, item := range items {
		owned[item.ID] = true
	}
	for itemID := range in.Proofs {
		if !owned[itemID] {
			return PurchaseOrder{}, fmt.Errorf("%w: bukti untuk item %d bukan bagian dari PO ini", shared.ErrValidation, itemID)
		}
	}
	proofRefs, err := s.saveItemProofs(ctx, in.Proofs)
	if err != nil {
		return PurchaseOrder{}, err
	}

	var (
		po   PurchaseOrder
		from POStatus
	)
	now := s.now()
	err = s.withTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetPOForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := requireStatus(po, StatusApprovedKeuangan, StatusDanaDitransfer); err != nil {
			return err
		}
		items, err := tx.ListItems(ctx, id)
		if err != nil {
			return err
		}
		updated, err := applyRealPrices(items, in.RealPrices, proofRefs)
		if err != nil {
			return err
		}
		for _, idx := range updated {
			if err := tx.UpdateItem(ctx, items[idx]); err != nil {
				return err
			}
		}
		var subtotals []decimal.Decimal
		for _, item := range items {
			if item.SubtotalReal.Valid {
				subtotals = append(subtotals, item.SubtotalReal.Decimal)
			}
		}
		if from, err = transition(&po, StatusBelanjaSelesai); err != nil {
			return err
		}
		po.TotalReal = decimal.NewNullDecimal(sumDecimals(subtotals))
		po.ShoppingCompletedBy = &actor.UserID
		po.ShoppingCompletedAt = &now
		po.Items = items
		return tx.UpdatePO(ctx, po)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.afterWrite(ctx, actor, "PO_SHOPPING_COMPLETE", po, from, map[string]any{"total_real": po.TotalReal.Decimal.String()})
	return po, nil
}

func validateReal(in RealItemInput, qtyRequired bool) error {
	if in.ItemID <= 0 {
		return fmt.Errorf("%w: item_id wajib diisi", shared.ErrValidation)
	}
	if !in.HargaReal.IsPositive() {
		return fmt.Errorf("%w: harga_real item %d harus lebih dari 0", shared.ErrValidation, in.ItemID)
	}
	if qtyRequired && !in.QtyReal.Valid {
		return fmt.Errorf("%w: qty_real item %d wajib diisi", shared.ErrValidation, in.ItemID)
	}
	if in.QtyReal.Valid {
		if !in.QtyReal.Decimal.IsPositive() {
			return fmt.Errorf("%w: qty_real item %d harus lebih dari 0", shared.ErrValidation, in.ItemID)
		}
		if err := checkAmount(fmt.Sprintf("qty_real item %d", in.ItemID), in.QtyReal.Decimal, qtyScale, maxQty); err != nil {
			return err
		}
	}
	return checkAmount(fmt.Sprintf("harga_real item %d", in.ItemID), in.HargaReal, amountScale, maxPrice)
}

// applyRealPrices fills real fields in place and returns the indexes it touched.
// A missing real quantity defaults to the estimate.
func applyRealPrices(items []POItem, inputs []RealItemInput, proofs map[int64]string) ([]int, error) {
	byID := make(map[int64]int, len(items))
	for i, item := range items {
		byID[item.ID] = i
	}
	touched := make([]int, 0, len(inputs))
	for _, in := range inputs {
		idx, ok := byID[in.ItemID]
		if !ok {
			return nil, fmt.Errorf("%w: item %d bukan bagian dari PO ini", shared.ErrValidation, in.ItemID)
		}
		qty := items[idx].QtyEstimasi
		if in.QtyReal.Valid {
			qty = in.QtyReal.Decimal
		}
		applyReal(&items[idx], qty, in.HargaReal)
		if ref, ok := proofs[in.ItemID]; ok {
			items[idx].BuktiFoto = ref
		}
		touched = append(touched, idx)
	}
	return touched, nil
}

func (s *Service) saveItemProofs(ctx context.Context, proofs map[int64]attachment.Upload) (map[int64]string, error) {
	refs := make(map[int64]string, len(proofs))
	if len(proofs) == 0 {
		return refs, nil
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for itemID, up := range proofs {
		g.Go(func() error {
			ref, err := s.save(gctx, attachment.FolderShopping, up)
			if err != nil {
				return fmt.Errorf("bukti item %d: %w", itemID, err)
			}
			mu.Lock()
			refs[itemID] = ref
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return refs, nil
}

func (s *Service) save(ctx context.Context, folder string, up attachment.Upload) (string, error) {
	if s.sink == nil {
		return "", errors.New("procurement: attachment sink not configured")
	}
	return s.sink.Save(ctx, folder, up)
}

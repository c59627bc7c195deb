package procurement

import (
	"fmt"

	"github.com/sppi/sppi-po/internal/shared"
)

// transitions lists every legal edge. Anything absent is rejected, so no
// status can move backwards.
var transitions = map[POStatus][]POStatus{
	StatusDraft:            {StatusWaitingApproval},
	StatusWaitingApproval:  {StatusApproved, StatusRejected},
	StatusApproved:         {StatusPartialTransfer, StatusApprovedKeuangan, StatusDanaDitransfer},
	StatusPartialTransfer:  {StatusPartialTransfer, StatusApprovedKeuangan},
	StatusApprovedKeuangan: {StatusBelanjaSelesai},
	StatusDanaDitransfer:   {StatusBelanjaSelesai},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to POStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// requireStatus fails with ErrInvalidState unless current is one of allowed.
func requireStatus(po PurchaseOrder, allowed ...POStatus) error {
	for _, s := range allowed {
		if po.Status == s {
			return nil
		}
	}
	return fmt.Errorf("%w: PO tidak dapat diproses. Status saat ini: %s", shared.ErrInvalidState, po.Status)
}

func transition(po *PurchaseOrder, to POStatus) (POStatus, error) {
	from := po.Status
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: transisi %s ke %s tidak diizinkan", shared.ErrInvalidState, from, to)
	}
	po.Status = to
	return from, nil
}

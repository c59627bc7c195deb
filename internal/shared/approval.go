package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ApprovalAction is an entry kind in the approval trail.
type ApprovalAction string

// Approval trail actions.
const (
	ApprovalSubmit  ApprovalAction = "SUBMIT"
	ApprovalApprove ApprovalAction = "APPROVE"
	ApprovalReject  ApprovalAction = "REJECT"
)

// Valid reports whether a is a known action.
func (a ApprovalAction) Valid() bool {
	switch a {
	case ApprovalSubmit, ApprovalApprove, ApprovalReject:
		return true
	}
	return false
}

// ApprovalLog is one entry of the approval trail.
type ApprovalLog struct {
	ID      int64          `json:"id"`
	Module  string         `json:"module"`
	RefID   uuid.UUID      `json:"ref_id"`
	ActorID int64          `json:"actor_id"`
	Action  ApprovalAction `json:"action"`
	Note    string         `json:"note"`
	At      time.Time      `json:"at"`
}

// ApprovalRef maps a module row id onto the UUID stored in approvals.ref_id.
// The mapping is deterministic, so the trail of PO 7 is always found under
// the same ref.
func ApprovalRef(module string, id int64) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("sppi:%s:%d", module, id)))
}

// ApprovalRecorder reads and appends the approval trail.
type ApprovalRecorder struct {
	db DB
}

// NewApprovalRecorder returns a recorder writing through db.
func NewApprovalRecorder(db DB) *ApprovalRecorder {
	return &ApprovalRecorder{db: db}
}

func (l ApprovalLog) validate() error {
	switch {
	case l.Module == "":
		return fmt.Errorf("%w: approval module required", ErrValidation)
	case l.ActorID == 0:
		return fmt.Errorf("%w: approval actor required", ErrValidation)
	case l.RefID == uuid.Nil:
		return fmt.Errorf("%w: approval ref required", ErrValidation)
	case !l.Action.Valid():
		return fmt.Errorf("%w: unknown approval action %q", ErrValidation, l.Action)
	}
	return nil
}

// Record appends an entry.
func (r *ApprovalRecorder) Record(ctx context.Context, log ApprovalLog) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("approval recorder not initialised")
	}
	if err := log.validate(); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, `INSERT INTO approvals (module, ref_id, actor_id, action, note)
VALUES ($1, $2, $3, $4, NULLIF($5, ''))`, log.Module, log.RefID, log.ActorID, string(log.Action), log.Note)
	return err
}

// EnsureSubmit appends a SUBMIT entry unless the trail already has one.
func (r *ApprovalRecorder) EnsureSubmit(ctx context.Context, module string, ref uuid.UUID, actorID int64, note string) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("approval recorder not initialised")
	}
	log := ApprovalLog{Module: module, RefID: ref, ActorID: actorID, Action: ApprovalSubmit, Note: note}
	if err := log.validate(); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, `INSERT INTO approvals (module, ref_id, actor_id, action, note)
SELECT $1, $2, $3, 'SUBMIT', NULLIF($4, '')
WHERE NOT EXISTS (SELECT 1 FROM approvals WHERE module = $1 AND ref_id = $2 AND action = 'SUBMIT')`,
		module, ref, actorID, note)
	return err
}

// List returns the trail oldest first.
func (r *ApprovalRecorder) List(ctx context.Context, module string, ref uuid.UUID) ([]ApprovalLog, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("approval recorder not initialised")
	}
	rows, err := r.db.Query(ctx, `SELECT id, module, ref_id, actor_id, action, COALESCE(note, ''), at
FROM approvals WHERE module = $1 AND ref_id = $2 ORDER BY at, id`, module, ref)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []ApprovalLog
	for rows.Next() {
		var (
			l      ApprovalLog
			action string
		)
		if err := rows.Scan(&l.ID, &l.Module, &l.RefID, &l.ActorID, &action, &l.Note, &l.At); err != nil {
			return nil, err
		}
		l.Action = ApprovalAction(action)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

package rbac

import "github.com/sppi/sppi-po/internal/shared"

// Role sets gating each route group.
var (
	// POAuthors create, submit and delete purchase orders.
	POAuthors = []shared.Role{shared.RoleAdmin}
	// POReaders may list and inspect purchase orders.
	POReaders = []shared.Role{shared.RoleAdmin, shared.RoleManajer, shared.RoleKeuangan, shared.RoleLapangan, shared.RolePurchasing}
	// Approvers approve or reject submitted purchase orders.
	Approvers = []shared.Role{shared.RoleManajer}
	// Finance funds approved purchase orders.
	Finance = []shared.Role{shared.RoleKeuangan}
	// Field records real purchases and issues invoices.
	Field = []shared.Role{shared.RoleLapangan, shared.RolePurchasing}
	// DapurAdmins manage the kitchen master data.
	DapurAdmins = []shared.Role{shared.RoleAdmin}
)

package shared

// Bakery permissions checked by the RBAC middleware.
const (
	PermMasterDataView = "masterdata.view"
	PermMasterDataEdit = "masterdata.edit"

	PermInventoryView   = "inventory.view"
	PermInventoryAdjust = "inventory.adjust"
	PermInventoryBatch  = "inventory.batch"

	PermReconcileView = "inventory.reconcile.view"
	PermReconcileFix  = "inventory.reconcile.fix"

	PermOrderView    = "orders.view"
	PermOrderCreate  = "orders.create"
	PermOrderTrack   = "orders.track"
	PermOrderCancel  = "orders.cancel"
	PermOrderBulkSet = "orders.bulk_status"

	PermCashierCheckout = "cashier.checkout"
	PermCashierView     = "cashier.view"

	PermReturnCreate  = "returns.create"
	PermReturnView    = "returns.view"
	PermReturnApprove = "returns.approve"

	PermProductionView    = "production.view"
	PermProductionRequest = "production.request"
	PermProductionManage  = "production.manage"

	PermReportView = "reports.view"

	PermNotificationView = "notifications.view"
)

// AllPermissions lists every declared permission.
func AllPermissions() []string {
	return []string{
		PermMasterDataView, PermMasterDataEdit,
		PermInventoryView, PermInventoryAdjust, PermInventoryBatch,
		PermReconcileView, PermReconcileFix,
		PermOrderView, PermOrderCreate, PermOrderTrack, PermOrderCancel, PermOrderBulkSet,
		PermCashierCheckout, PermCashierView,
		PermReturnCreate, PermReturnView, PermReturnApprove,
		PermProductionView, PermProductionRequest, PermProductionManage,
		PermReportView,
		PermNotificationView,
	}
}

// RolePermissions returns the permission set granted to a role.
func RolePermissions(role Role) []string {
	switch role {
	case RoleAdmin:
		return AllPermissions()
	case RoleOwner:
		return []string{
			PermMasterDataView, PermInventoryView, PermReconcileView, PermOrderView,
			PermCashierView, PermReturnView, PermProductionView, PermReportView, PermNotificationView,
		}
	case RoleHQStaff:
		return []string{
			PermMasterDataView, PermMasterDataEdit,
			PermInventoryView, PermInventoryAdjust, PermInventoryBatch,
			PermReconcileView, PermReconcileFix,
			PermOrderView, PermOrderCreate, PermOrderTrack, PermOrderCancel, PermOrderBulkSet,
			PermCashierView, PermReturnView, PermReturnApprove,
			PermProductionView, PermProductionManage,
			PermReportView, PermNotificationView,
		}
	case RoleProductionStaff:
		return []string{
			PermMasterDataView, PermOrderView, PermOrderTrack,
			PermProductionView, PermProductionManage, PermNotificationView,
		}
	case RoleBranchStaff:
		return []string{
			PermMasterDataView, PermInventoryView, PermInventoryAdjust,
			PermOrderView, PermOrderCreate, PermOrderTrack,
			PermCashierCheckout, PermCashierView,
			PermReturnCreate, PermReturnView,
			PermProductionView, PermProductionRequest,
			PermNotificationView,
		}
	default:
		return nil
	}
}

package shared

import "fmt"

// ReconciliationLockKey builds redis keys guarding reconciliation fixes per branch.
func ReconciliationLockKey(branchID int64) string {
	if branchID == 0 {
		return "inventory:reconcile:all:lock"
	}
	return fmt.Sprintf("inventory:reconcile:branch:%d:lock", branchID)
}

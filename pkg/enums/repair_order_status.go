package enums

import "slices"

// RepairOrderStatus tracks where a device is in the repair workflow.
type RepairOrderStatus string

const (
	RepairOrderStatusInBranch             RepairOrderStatus = "IN_BRANCH"
	RepairOrderStatusAtHQ                 RepairOrderStatus = "AT_HQ"
	RepairOrderStatusAssignedToTechnician RepairOrderStatus = "ASSIGNED_TO_TECHNICIAN"
	RepairOrderStatusUnderRepair          RepairOrderStatus = "UNDER_REPAIR"
	RepairOrderStatusRepaired             RepairOrderStatus = "REPAIRED"
	RepairOrderStatusRepairFailed         RepairOrderStatus = "REPAIR_FAILED"
	RepairOrderStatusCompleted            RepairOrderStatus = "COMPLETED"
)

var repairOrderStatuses = []RepairOrderStatus{
	RepairOrderStatusInBranch,
	RepairOrderStatusAtHQ,
	RepairOrderStatusAssignedToTechnician,
	RepairOrderStatusUnderRepair,
	RepairOrderStatusRepaired,
	RepairOrderStatusRepairFailed,
	RepairOrderStatusCompleted,
}

func (s RepairOrderStatus) String() string { return string(s) }

func (s RepairOrderStatus) IsValid() bool { return slices.Contains(repairOrderStatuses, s) }

// RequiresTechnician reports whether an order in this status must carry a technician.
func (s RepairOrderStatus) RequiresTechnician() bool {
	switch s {
	case RepairOrderStatusAssignedToTechnician,
		RepairOrderStatusUnderRepair,
		RepairOrderStatusRepaired,
		RepairOrderStatusRepairFailed:
		return true
	default:
		return false
	}
}

func ParseRepairOrderStatus(value string) (RepairOrderStatus, error) {
	return parse("repair order status", repairOrderStatuses, value)
}

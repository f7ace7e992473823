package repairs

import (
	"github.com/angelmondragon/repairhub-backend/internal/authz"
	"github.com/angelmondragon/repairhub-backend/pkg/enums"
)

// Trigger is the real-world event that moves a repair order.
type Trigger string

const (
	TriggerArriveAtHQ     Trigger = "arrive_at_hq"
	TriggerAssign         Trigger = "assign"
	TriggerStart          Trigger = "start"
	TriggerComplete       Trigger = "complete"
	TriggerFail           Trigger = "fail"
	TriggerReturnToBranch Trigger = "return_to_branch"
)

type transitionKey struct {
	from    enums.RepairOrderStatus
	trigger Trigger
}

// transitionTable is the only source of legal moves. Anything absent is rejected.
var transitionTable = map[transitionKey]enums.RepairOrderStatus{
	{enums.RepairOrderStatusInBranch, TriggerArriveAtHQ}:         enums.RepairOrderStatusAtHQ,
	{enums.RepairOrderStatusAtHQ, TriggerAssign}:                 enums.RepairOrderStatusAssignedToTechnician,
	{enums.RepairOrderStatusAssignedToTechnician, TriggerStart}:  enums.RepairOrderStatusUnderRepair,
	{enums.RepairOrderStatusUnderRepair, TriggerComplete}:        enums.RepairOrderStatusRepaired,
	{enums.RepairOrderStatusUnderRepair, TriggerFail}:            enums.RepairOrderStatusRepairFailed,
	{enums.RepairOrderStatusRepaired, TriggerReturnToBranch}:     enums.RepairOrderStatusCompleted,
	{enums.RepairOrderStatusRepairFailed, TriggerReturnToBranch}: enums.RepairOrderStatusCompleted,
}

var triggerActions = map[Trigger]authz.Action{
	TriggerArriveAtHQ:     authz.ActionReceiveBatch,
	TriggerAssign:         authz.ActionAssign,
	TriggerStart:          authz.ActionStart,
	TriggerComplete:       authz.ActionComplete,
	TriggerFail:           authz.ActionFail,
	TriggerReturnToBranch: authz.ActionReceiveBatch,
}

// Next returns the status trigger leads to from the given status.
func Next(from enums.RepairOrderStatus, trigger Trigger) (enums.RepairOrderStatus, bool) {
	to, ok := transitionTable[transitionKey{from: from, trigger: trigger}]
	return to, ok
}

// IsScanTrigger reports whether the trigger only fires from a batch receipt.
func IsScanTrigger(trigger Trigger) bool {
	return trigger == TriggerArriveAtHQ || trigger == TriggerReturnToBranch
}

// IsLegalStep reports whether some trigger moves from to to.
func IsLegalStep(from, to enums.RepairOrderStatus) bool {
	for key, next := range transitionTable {
		if key.from == from && next == to {
			return true
		}
	}
	return false
}

// IsValidWalk reports whether statuses starts at intake and only takes legal steps.
func IsValidWalk(statuses []enums.RepairOrderStatus) bool {
	if len(statuses) == 0 || statuses[0] != enums.RepairOrderStatusInBranch {
		return false
	}
	for i := 1; i < len(statuses); i++ {
		if !IsLegalStep(statuses[i-1], statuses[i]) {
			return false
		}
	}
	return true
}

package enums

import "slices"

// BatchStatus tracks a transport batch. Batches only move forward.
type BatchStatus string

const (
	BatchStatusCreated   BatchStatus = "CREATED"
	BatchStatusInTransit BatchStatus = "IN_TRANSIT"
	BatchStatusReceived  BatchStatus = "RECEIVED"
)

var batchStatuses = []BatchStatus{BatchStatusCreated, BatchStatusInTransit, BatchStatusReceived}

func (s BatchStatus) String() string { return string(s) }

func (s BatchStatus) IsValid() bool { return slices.Contains(batchStatuses, s) }

// IsOpen reports whether the batch still holds claims on its orders.
func (s BatchStatus) IsOpen() bool {
	return s == BatchStatusCreated || s == BatchStatusInTransit
}

func ParseBatchStatus(value string) (BatchStatus, error) {
	return parse("batch status", batchStatuses, value)
}

// BatchDirection is the leg a batch travels.
type BatchDirection string

const (
	BatchDirectionToHQ     BatchDirection = "TO_HQ"
	BatchDirectionToBranch BatchDirection = "TO_BRANCH"
)

var batchDirections = []BatchDirection{BatchDirectionToHQ, BatchDirectionToBranch}

func (d BatchDirection) String() string { return string(d) }

func (d BatchDirection) IsValid() bool { return slices.Contains(batchDirections, d) }

func ParseBatchDirection(value string) (BatchDirection, error) {
	return parse("batch direction", batchDirections, value)
}

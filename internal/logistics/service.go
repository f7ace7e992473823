package logistics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/repairhub-backend/internal/authz"
	"github.com/angelmondragon/repairhub-backend/internal/repairs"
	"github.com/angelmondragon/repairhub-backend/pkg/db/models"
	"github.com/angelmondragon/repairhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/repairhub-backend/pkg/errors"
	"github.com/angelmondragon/repairhub-backend/pkg/logger"
	"github.com/angelmondragon/repairhub-backend/pkg/metrics"
	"github.com/angelmondragon/repairhub-backend/pkg/outbox"
	"github.com/angelmondragon/repairhub-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/repairhub-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type batchNumbers interface {
	NextBatchNo(ctx context.Context) (string, error)
}

type orderCascader interface {
	CascadeTx(ctx context.Context, tx *gorm.DB, input repairs.CascadeInput) ([]repairs.Transition, error)
}

// Service is the transport batch state machine.
type Service interface {
	Create(ctx context.Context, actor authz.Actor, input CreateBatchInput) (*BatchView, error)
	Pickup(ctx context.Context, actor authz.Actor, batchNo string) (*BatchView, error)
	Receive(ctx context.Context, actor authz.Actor, batchNo string) (*ReceiveResult, error)
	Get(ctx context.Context, actor authz.Actor, batchNo string) (*BatchView, error)
	List(ctx context.Context, actor authz.Actor, filters ListFilters, params pagination.Params) (*BatchPage, error)
}

// ServiceParams groups the collaborators of the batch machine.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Orders  orderCascader
	Outbox  outboxPublisher
	Numbers batchNumbers
	Metrics *metrics.TransitionMetrics
	Logger  *logger.Logger
}

// ReceiveResult is the received batch plus the order moves it cascaded.
type ReceiveResult struct {
	Batch       *BatchView           `json:"batch"`
	Transitions []repairs.Transition `json:"-"`
	OrdersMoved int                  `json:"orders_moved"`
}

type service struct {
	repo    Repository
	tx      txRunner
	orders  orderCascader
	outbox  outboxPublisher
	numbers batchNumbers
	metrics *metrics.TransitionMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// eligibleStatuses lists the order statuses each direction accepts.
var eligibleStatuses = map[enums.BatchDirection][]enums.RepairOrderStatus{
	enums.BatchDirectionToHQ:     {enums.RepairOrderStatusInBranch},
	enums.BatchDirectionToBranch: {enums.RepairOrderStatusRepaired, enums.RepairOrderStatusRepairFailed},
}

var receiveTriggers = map[enums.BatchDirection]repairs.Trigger{
	enums.BatchDirectionToHQ:     repairs.TriggerArriveAtHQ,
	enums.BatchDirectionToBranch: repairs.TriggerReturnToBranch,
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("transport batch repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order cascader required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Numbers == nil {
		return nil, fmt.Errorf("batch number generator required")
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		orders:  params.Orders,
		outbox:  params.Outbox,
		numbers: params.Numbers,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, actor authz.Actor, input CreateBatchInput) (*BatchView, error) {
	if err := authz.Require(actor, authz.ActionCreateBatch, authz.Entity{}); err != nil {
		s.metrics.Rejection(string(authz.ActionCreateBatch), string(pkgerrors.CodeOf(err)))
		return nil, err
	}
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	batchNo, err := s.numbers.NextBatchNo(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate batch number")
	}

	now := s.now().UTC()
	batch := &models.TransportBatch{
		BatchNo:   batchNo,
		Direction: input.Direction,
		Status:    enums.BatchStatusCreated,
		CreatorID: actor.UserID,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	var items []models.BatchItem

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		orders, err := repo.LockOrders(ctx, input.OrderIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock orders")
		}
		claimed, err := repo.ClaimedOrderIDs(ctx, input.OrderIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check open batch claims")
		}
		byID, offending := checkEligibility(input, orders, claimed)
		if len(offending) > 0 {
			return ineligible(offending)
		}

		if err := repo.CreateBatch(ctx, batch); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create transport batch")
		}

		var lost []string
		for _, id := range input.OrderIDs {
			ok, err := repo.Claim(ctx, models.BatchClaim{OrderID: id, BatchID: batch.ID, CreatedAt: now})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claim order")
			}
			if !ok {
				lost = append(lost, id.String())
			}
		}
		if len(lost) > 0 {
			return ineligible(lost)
		}

		items = make([]models.BatchItem, 0, len(input.OrderIDs))
		for i, id := range input.OrderIDs {
			order := byID[id]
			items = append(items, models.BatchItem{
				BatchID:          batch.ID,
				OrderID:          id,
				Position:         i + 1,
				OrderNo:          order.OrderNo,
				DeviceModel:      order.DeviceModel,
				CustomerName:     order.CustomerName,
				BranchID:         order.BranchID,
				StatusAtCreation: order.Status,
				CreatedAt:        now,
			})
		}
		if err := repo.CreateItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create batch items")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBatchCreated,
			AggregateType: enums.AggregateTransportBatch,
			AggregateID:   batch.ID,
			Actor:         actorRef(actor),
			OccurredAt:    now,
			Data: payloads.BatchCreatedEvent{
				BatchID:   batch.ID,
				BatchNo:   batch.BatchNo,
				Direction: batch.Direction,
				OrderIDs:  input.OrderIDs,
			},
		})
	})
	if err != nil {
		s.metrics.Rejection(string(authz.ActionCreateBatch), string(pkgerrors.CodeOf(err)))
		return nil, err
	}

	s.metrics.BatchTransition(string(batch.Direction), string(batch.Status))
	s.logBatch(ctx, batch, "", "transport batch created")
	return NewBatchView(batch, items), nil
}

func validateCreate(input CreateBatchInput) error {
	if !input.Direction.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid batch direction").
			WithDetails(map[string]any{"direction": string(input.Direction)})
	}
	if len(input.OrderIDs) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one order is required")
	}
	seen := make(map[uuid.UUID]struct{}, len(input.OrderIDs))
	var duplicates []string
	for _, id := range input.OrderIDs {
		if id == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "order ids must be set")
		}
		if _, ok := seen[id]; ok {
			duplicates = append(duplicates, id.String())
			continue
		}
		seen[id] = struct{}{}
	}
	if len(duplicates) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order ids must be unique").
			WithDetails(map[string]any{"order_ids": duplicates})
	}
	return nil
}

// checkEligibility returns the locked orders by id and every requested id that
// is missing, in the wrong status for the direction or already claimed.
func checkEligibility(input CreateBatchInput, orders []models.RepairOrder, claimed []uuid.UUID) (map[uuid.UUID]models.RepairOrder, []string) {
	byID := make(map[uuid.UUID]models.RepairOrder, len(orders))
	for _, order := range orders {
		byID[order.ID] = order
	}
	claimedSet := make(map[uuid.UUID]struct{}, len(claimed))
	for _, id := range claimed {
		claimedSet[id] = struct{}{}
	}

	var offending []string
	for _, id := range input.OrderIDs {
		order, ok := byID[id]
		if !ok || !acceptsStatus(input.Direction, order.Status) {
			offending = append(offending, id.String())
			continue
		}
		if _, taken := claimedSet[id]; taken {
			offending = append(offending, id.String())
		}
	}
	return byID, offending
}

func acceptsStatus(direction enums.BatchDirection, status enums.RepairOrderStatus) bool {
	for _, candidate := range eligibleStatuses[direction] {
		if candidate == status {
			return true
		}
	}
	return false
}

func ineligible(orderIDs []string) error {
	return pkgerrors.New(pkgerrors.CodeIneligibleOrder, "orders cannot be added to this batch").
		WithDetails(map[string]any{"order_ids": orderIDs})
}

func (s *service) Pickup(ctx context.Context, actor authz.Actor, batchNo string) (*BatchView, error) {
	batchNo = strings.TrimSpace(batchNo)
	if err := authz.Require(actor, authz.ActionPickupBatch, authz.Entity{}); err != nil {
		s.metrics.Rejection(string(authz.ActionPickupBatch), string(pkgerrors.CodeOf(err)))
		return nil, err
	}
	if batchNo == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch number is required")
	}

	var batch *models.TransportBatch
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByNoForUpdate(ctx, batchNo)
		if err != nil {
			return mapLoadError(err, batchNo)
		}
		at := s.now().UTC()
		by := actor.UserID
		if err := s.advance(ctx, tx, current, enums.BatchStatusCreated, enums.BatchStatusInTransit, actor, map[string]any{
			"picked_up_at": at,
			"picked_up_by": by,
		}, at); err != nil {
			return err
		}
		current.PickedUpAt = &at
		current.PickedUpBy = &by
		batch = current
		return nil
	})
	if err != nil {
		s.metrics.Rejection(string(authz.ActionPickupBatch), string(pkgerrors.CodeOf(err)))
		return nil, err
	}

	s.metrics.BatchTransition(string(batch.Direction), string(batch.Status))
	s.logBatch(ctx, batch, enums.BatchStatusCreated, "transport batch picked up")
	return NewBatchView(batch, nil), nil
}

func (s *service) Receive(ctx context.Context, actor authz.Actor, batchNo string) (*ReceiveResult, error) {
	batchNo = strings.TrimSpace(batchNo)
	if err := authz.Require(actor, authz.ActionReceiveBatch, authz.Entity{}); err != nil {
		s.metrics.Rejection(string(authz.ActionReceiveBatch), string(pkgerrors.CodeOf(err)))
		return nil, err
	}
	if batchNo == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch number is required")
	}

	var (
		batch       *models.TransportBatch
		items       []models.BatchItem
		transitions []repairs.Transition
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByNoForUpdate(ctx, batchNo)
		if err != nil {
			return mapLoadError(err, batchNo)
		}
		if current.Status != enums.BatchStatusInTransit {
			return invalidBatchTransition(current, enums.BatchStatusReceived)
		}

		items, err = repo.ListItems(ctx, current.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load batch items")
		}
		orderIDs := make([]uuid.UUID, 0, len(items))
		for _, item := range items {
			orderIDs = append(orderIDs, item.OrderID)
		}

		at := s.now().UTC()
		transitions, err = s.orders.CascadeTx(ctx, tx, repairs.CascadeInput{
			OrderIDs: orderIDs,
			Trigger:  receiveTriggers[current.Direction],
			Actor:    actor,
			BatchID:  current.ID,
			BatchNo:  current.BatchNo,
			At:       at,
		})
		if err != nil {
			return err
		}

		by := actor.UserID
		if err := s.advance(ctx, tx, current, enums.BatchStatusInTransit, enums.BatchStatusReceived, actor, map[string]any{
			"received_at": at,
			"received_by": by,
		}, at); err != nil {
			return err
		}
		if err := repo.ReleaseClaims(ctx, current.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release batch claims")
		}
		current.ReceivedAt = &at
		current.ReceivedBy = &by
		batch = current
		return nil
	})
	if err != nil {
		s.metrics.Rejection(string(authz.ActionReceiveBatch), string(pkgerrors.CodeOf(err)))
		return nil, err
	}

	s.metrics.BatchTransition(string(batch.Direction), string(batch.Status))
	s.metrics.CascadeSize(len(transitions))
	for _, moved := range transitions {
		s.metrics.RepairTransition(string(moved.From), string(moved.To), true)
		if s.logg != nil {
			s.logg.Info(s.logg.WithFields(ctx, map[string]any{
				"order_id": moved.OrderID.String(),
				"order_no": moved.OrderNo,
				"from":     string(moved.From),
				"to":       string(moved.To),
				"batch_no": batch.BatchNo,
			}), "repair order transitioned")
		}
	}
	s.logBatch(ctx, batch, enums.BatchStatusInTransit, "transport batch received")

	return &ReceiveResult{
		Batch:       NewBatchView(batch, items),
		Transitions: transitions,
		OrdersMoved: len(transitions),
	}, nil
}

// advance moves a locked batch one step forward and emits the status event.
// Batches never regress or skip a step.
func (s *service) advance(ctx context.Context, tx *gorm.DB, batch *models.TransportBatch, from, to enums.BatchStatus, actor authz.Actor, extra map[string]any, at time.Time) error {
	if batch.Status != from {
		return invalidBatchTransition(batch, to)
	}
	updates := map[string]any{
		"status":     to,
		"version":    batch.Version + 1,
		"updated_at": at,
	}
	for k, v := range extra {
		updates[k] = v
	}
	rows, err := s.repo.WithTx(tx).CompareAndSetStatus(ctx, batch.ID, from, batch.Version, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update transport batch status")
	}
	if rows == 0 {
		return invalidBatchTransition(batch, to)
	}
	batch.Status = to
	batch.Version++
	batch.UpdatedAt = at

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventBatchStatusChanged,
		AggregateType: enums.AggregateTransportBatch,
		AggregateID:   batch.ID,
		Actor:         actorRef(actor),
		OccurredAt:    at,
		Data: payloads.BatchStatusChangedEvent{
			BatchID:    batch.ID,
			BatchNo:    batch.BatchNo,
			Direction:  batch.Direction,
			From:       from,
			To:         to,
			OccurredAt: at,
		},
	})
}

func (s *service) Get(ctx context.Context, actor authz.Actor, batchNo string) (*BatchView, error) {
	if err := authz.Require(actor, authz.ActionViewBatch, authz.Entity{}); err != nil {
		return nil, err
	}
	batchNo = strings.TrimSpace(batchNo)
	batch, err := s.repo.FindByNo(ctx, batchNo)
	if err != nil {
		return nil, mapLoadError(err, batchNo)
	}
	items, err := s.repo.ListItems(ctx, batch.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load batch items")
	}
	return NewBatchView(batch, items), nil
}

func (s *service) List(ctx context.Context, actor authz.Actor, filters ListFilters, params pagination.Params) (*BatchPage, error) {
	if err := authz.Require(actor, authz.ActionViewBatch, authz.Entity{}); err != nil {
		return nil, err
	}
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	if filters.Direction != nil && !filters.Direction.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid direction filter")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, filters, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list transport batches")
	}
	views := make([]BatchView, 0, len(rows))
	for i := range rows {
		views = append(views, *NewBatchView(&rows[i], nil))
	}
	page := pagination.Trim(views, params.Limit, func(v BatchView) pagination.Cursor {
		return pagination.Cursor{CreatedAt: v.CreatedAt, ID: v.ID}
	})
	return &page, nil
}

func (s *service) logBatch(ctx context.Context, batch *models.TransportBatch, from enums.BatchStatus, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"batch_no":  batch.BatchNo,
		"direction": string(batch.Direction),
		"from":      string(from),
		"to":        string(batch.Status),
	}), msg)
}

func mapLoadError(err error, batchNo string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "transport batch not found").
			WithDetails(map[string]any{"batch_no": batchNo})
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load transport batch")
}

func invalidBatchTransition(batch *models.TransportBatch, to enums.BatchStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, "batch cannot move to the requested status").
		WithDetails(map[string]any{
			"batch_no": batch.BatchNo,
			"status":   string(batch.Status),
			"to":       string(to),
		})
}

func actorRef(actor authz.Actor) *outbox.ActorRef {
	return &outbox.ActorRef{
		UserID:   actor.UserID,
		BranchID: actor.BranchID,
		Role:     string(actor.Role),
	}
}

package repairs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/repairhub-backend/internal/audit"
	"github.com/angelmondragon/repairhub-backend/internal/authz"
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

type orderNumbers interface {
	NextOrderNo(ctx context.Context) (string, error)
}

type technicianResolver interface {
	ResolveTechnician(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Service is the repair order state machine.
type Service interface {
	Create(ctx context.Context, actor authz.Actor, input CreateOrderInput) (*OrderView, error)
	Assign(ctx context.Context, actor authz.Actor, orderID, technicianID uuid.UUID) (*OrderView, error)
	Start(ctx context.Context, actor authz.Actor, orderID uuid.UUID) (*OrderView, error)
	Complete(ctx context.Context, actor authz.Actor, orderID uuid.UUID) (*OrderView, error)
	Fail(ctx context.Context, actor authz.Actor, orderID uuid.UUID, reason string) (*OrderView, error)
	Get(ctx context.Context, actor authz.Actor, orderID uuid.UUID) (*OrderDetail, error)
	History(ctx context.Context, actor authz.Actor, orderID uuid.UUID) ([]HistoryEntryView, error)
	List(ctx context.Context, actor authz.Actor, filters ListFilters, params pagination.Params) (*OrderPage, error)
	// CascadeTx moves every listed order by trigger inside the caller's
	// transaction. Any order not in the trigger's source status aborts the whole
	// cascade with STALE_BATCH_MEMBER.
	CascadeTx(ctx context.Context, tx *gorm.DB, input CascadeInput) ([]Transition, error)
}

// ServiceParams groups the collaborators of the order machine.
type ServiceParams struct {
	Repo        Repository
	Tx          txRunner
	Ledger      audit.Ledger
	Outbox      outboxPublisher
	Numbers     orderNumbers
	Technicians technicianResolver
	Metrics     *metrics.TransitionMetrics
	Logger      *logger.Logger
}

type service struct {
	repo        Repository
	tx          txRunner
	ledger      audit.Ledger
	outbox      outboxPublisher
	numbers     orderNumbers
	technicians technicianResolver
	metrics     *metrics.TransitionMetrics
	logg        *logger.Logger
	now         func() time.Time
}

// CascadeInput describes a batch receipt fanning out into its member orders.
type CascadeInput struct {
	OrderIDs []uuid.UUID
	Trigger  Trigger
	Actor    authz.Actor
	BatchID  uuid.UUID
	BatchNo  string
	At       time.Time
}

// Transition is one applied order move.
type Transition struct {
	OrderID uuid.UUID
	OrderNo string
	From    enums.RepairOrderStatus
	To      enums.RepairOrderStatus
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("repair order repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("audit ledger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Numbers == nil {
		return nil, fmt.Errorf("order number generator required")
	}
	if params.Technicians == nil {
		return nil, fmt.Errorf("technician resolver required")
	}
	return &service{
		repo:        params.Repo,
		tx:          params.Tx,
		ledger:      params.Ledger,
		outbox:      params.Outbox,
		numbers:     params.Numbers,
		technicians: params.Technicians,
		metrics:     params.Metrics,
		logg:        params.Logger,
		now:         time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, actor authz.Actor, input CreateOrderInput) (*OrderView, error) {
	input.normalize()
	branchID, err := intakeBranch(actor, input.BranchID)
	if err != nil {
		return nil, err
	}
	if err := authz.Require(actor, authz.ActionCreateOrder, authz.Entity{BranchID: &branchID}); err != nil {
		s.metrics.Rejection("repair.create", string(pkgerrors.CodeOf(err)))
		return nil, err
	}
	if input.CustomerName == "" || input.CustomerContact == "" || input.DeviceModel == "" || input.ProblemDescription == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name, contact, device model and problem description are required")
	}

	orderNo, err := s.numbers.NextOrderNo(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate order number")
	}

	now := s.now().UTC()
	order := &models.RepairOrder{
		OrderNo:            orderNo,
		CustomerName:       input.CustomerName,
		CustomerContact:    input.CustomerContact,
		CustomerEmail:      input.CustomerEmail,
		DeviceModel:        input.DeviceModel,
		IMEI:               input.IMEI,
		ProblemDescription: input.ProblemDescription,
		BranchID:           branchID,
		Status:             enums.RepairOrderStatusInBranch,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create repair order")
		}
		if _, err := s.ledger.Record(ctx, tx, audit.RecordInput{
			OrderID: order.ID,
			To:      enums.RepairOrderStatusInBranch,
			UserID:  actor.UserID,
			At:      now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record intake")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRepairOrderCreated,
			AggregateType: enums.AggregateRepairOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(actor),
			OccurredAt:    now,
			Data: payloads.RepairOrderCreatedEvent{
				OrderID:     order.ID,
				OrderNo:     order.OrderNo,
				BranchID:    order.BranchID,
				DeviceModel: order.DeviceModel,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RepairTransition("", string(enums.RepairOrderStatusInBranch), false)
	s.logTransition(ctx, order, "", enums.RepairOrderStatusInBranch, "")
	return NewOrderView(order), nil
}

// intakeBranch resolves where an order is taken in: a branch admin always uses
// their own branch, HQ roles must name one.
func intakeBranch(actor authz.Actor, requested *uuid.UUID) (uuid.UUID, error) {
	if actor.Role == enums.RoleBranchAdmin && actor.BranchID != nil {
		if requested != nil && *requested != *actor.BranchID {
			return *requested, nil
		}
		return *actor.BranchID, nil
	}
	if requested == nil || *requested == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "branch_id is required")
	}
	return *requested, nil
}

func (s *service) Assign(ctx context.Context, actor authz.Actor, orderID, technicianID uuid.UUID) (*OrderView, error) {
	if err := authz.Require(actor, authz.ActionAssign, authz.Entity{}); err != nil {
		s.metrics.Rejection(string(authz.ActionAssign), string(pkgerrors.CodeOf(err)))
		return nil, err
	}
	technician, err := s.technicians.ResolveTechnician(ctx, technicianID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, transitionRequest{
		orderID:      orderID,
		trigger:      TriggerAssign,
		actor:        actor,
		technicianID: &technician.ID,
	})
}

func (s *service) Start(ctx context.Context, actor authz.Actor, orderID uuid.UUID) (*OrderView, error) {
	return s.transition(ctx, transitionRequest{orderID: orderID, trigger: TriggerStart, actor: actor})
}

func (s *service) Complete(ctx context.Context, actor authz.Actor, orderID uuid.UUID) (*OrderView, error) {
	return s.transition(ctx, transitionRequest{orderID: orderID, trigger: TriggerComplete, actor: actor})
}

func (s *service) Fail(ctx context.Context, actor authz.Actor, orderID uuid.UUID, reason string) (*OrderView, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		s.metrics.Rejection(string(authz.ActionFail), string(pkgerrors.CodeValidation))
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "failure reason is required").
			WithDetails(map[string]any{"order_id": orderID.String()})
	}
	return s.transition(ctx, transitionRequest{orderID: orderID, trigger: TriggerFail, actor: actor, remark: reason})
}

type transitionRequest struct {
	orderID      uuid.UUID
	trigger      Trigger
	actor        authz.Actor
	remark       string
	technicianID *uuid.UUID
}

// transition runs one direct (non-cascade) move: lock, guard, table, CAS,
// history, outbox. All of it commits or none of it does.
func (s *service) transition(ctx context.Context, req transitionRequest) (*OrderView, error) {
	action := triggerActions[req.trigger]
	var (
		order *models.RepairOrder
		from  enums.RepairOrderStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByIDForUpdate(ctx, req.orderID)
		if err != nil {
			return mapLoadError(err, req.orderID)
		}
		if err := authz.Require(req.actor, action, authz.ForOrder(current.TechnicianID, current.BranchID)); err != nil {
			return err
		}
		to, ok := Next(current.Status, req.trigger)
		if !ok {
			return invalidTransition(current, req.trigger)
		}
		from = current.Status
		if err := s.applyTx(ctx, tx, current, to, applyInput{
			trigger:      req.trigger,
			actor:        req.actor,
			remark:       req.remark,
			technicianID: req.technicianID,
			at:           s.now().UTC(),
		}); err != nil {
			return err
		}
		order = current
		return nil
	})
	if err != nil {
		s.metrics.Rejection(string(action), string(pkgerrors.CodeOf(err)))
		return nil, err
	}

	s.metrics.RepairTransition(string(from), string(order.Status), false)
	s.logTransition(ctx, order, from, order.Status, "")
	return NewOrderView(order), nil
}

type applyInput struct {
	trigger      Trigger
	actor        authz.Actor
	remark       string
	technicianID *uuid.UUID
	batchID      *uuid.UUID
	batchNo      string
	at           time.Time
}

// applyTx writes one legal move for an order already locked on tx and mutates
// order in place to the committed state.
func (s *service) applyTx(ctx context.Context, tx *gorm.DB, order *models.RepairOrder, to enums.RepairOrderStatus, in applyInput) error {
	from := order.Status
	previousTechnician := order.TechnicianID

	technician := order.TechnicianID
	if in.technicianID != nil {
		technician = in.technicianID
	}
	if !to.RequiresTechnician() {
		technician = nil
	}
	if to.RequiresTechnician() && technician == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transition would leave order without technician").
			WithDetails(map[string]any{"order_id": order.ID.String(), "to": string(to)})
	}

	updates := map[string]any{
		"status":        to,
		"technician_id": technician,
		"version":       order.Version + 1,
		"updated_at":    in.at,
	}
	rows, err := s.repo.WithTx(tx).CompareAndSetStatus(ctx, order.ID, from, order.Version, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update repair order status")
	}
	if rows == 0 {
		return invalidTransition(order, in.trigger)
	}

	order.Status = to
	order.TechnicianID = technician
	order.Version++
	order.UpdatedAt = in.at

	scan := IsScanTrigger(in.trigger)
	if _, err := s.ledger.Record(ctx, tx, audit.RecordInput{
		OrderID:      order.ID,
		From:         &from,
		To:           to,
		Remark:       in.remark,
		UserID:       in.actor.UserID,
		IsScanAction: scan,
		BatchID:      in.batchID,
		At:           in.at,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record status history")
	}

	event := payloads.RepairStatusChangedEvent{
		OrderID:      order.ID,
		OrderNo:      order.OrderNo,
		BranchID:     order.BranchID,
		From:         from,
		To:           to,
		TechnicianID: technician,
		IsScanAction: scan,
	}
	if event.TechnicianID == nil {
		event.TechnicianID = previousTechnician
	}
	if in.remark != "" {
		remark := in.remark
		event.Remark = &remark
	}
	if in.batchNo != "" {
		batchNo := in.batchNo
		event.BatchNo = &batchNo
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventRepairStatusChanged,
		AggregateType: enums.AggregateRepairOrder,
		AggregateID:   order.ID,
		Actor:         actorRef(in.actor),
		OccurredAt:    in.at,
		Data:          event,
	})
}

func (s *service) CascadeTx(ctx context.Context, tx *gorm.DB, input CascadeInput) ([]Transition, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if !IsScanTrigger(input.Trigger) {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "trigger cannot be cascaded").
			WithDetails(map[string]any{"trigger": string(input.Trigger)})
	}
	if len(input.OrderIDs) == 0 {
		return nil, nil
	}
	if err := authz.Require(input.Actor, triggerActions[input.Trigger], authz.Entity{}); err != nil {
		return nil, err
	}

	orders, err := s.repo.WithTx(tx).FindManyForUpdate(ctx, input.OrderIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock batch member orders")
	}

	found := make(map[uuid.UUID]*models.RepairOrder, len(orders))
	for i := range orders {
		found[orders[i].ID] = &orders[i]
	}

	var stale []string
	for _, id := range input.OrderIDs {
		order, ok := found[id]
		if !ok {
			stale = append(stale, id.String())
			continue
		}
		if _, ok := Next(order.Status, input.Trigger); !ok {
			stale = append(stale, id.String())
		}
	}
	if len(stale) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStaleBatchMember, "batch members are no longer in the expected status").
			WithDetails(map[string]any{"order_ids": stale, "batch_no": input.BatchNo})
	}

	at := input.At
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()
	batchID := input.BatchID

	out := make([]Transition, 0, len(input.OrderIDs))
	for _, id := range input.OrderIDs {
		order := found[id]
		from := order.Status
		to, _ := Next(from, input.Trigger)
		if err := s.applyTx(ctx, tx, order, to, applyInput{
			trigger: input.Trigger,
			actor:   input.Actor,
			batchID: &batchID,
			batchNo: input.BatchNo,
			at:      at,
		}); err != nil {
			if pkgerrors.Is(err, pkgerrors.CodeInvalidTransition) {
				return nil, pkgerrors.Wrap(pkgerrors.CodeStaleBatchMember, err, "batch member changed during receipt").
					WithDetails(map[string]any{"order_ids": []string{id.String()}, "batch_no": input.BatchNo})
			}
			return nil, err
		}
		out = append(out, Transition{OrderID: order.ID, OrderNo: order.OrderNo, From: from, To: to})
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, actor authz.Actor, orderID uuid.UUID) (*OrderDetail, error) {
	order, err := s.load(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	entries, err := s.ledger.History(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load status history")
	}
	return &OrderDetail{OrderView: *NewOrderView(order), History: newHistoryViews(entries)}, nil
}

func (s *service) History(ctx context.Context, actor authz.Actor, orderID uuid.UUID) ([]HistoryEntryView, error) {
	order, err := s.load(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	entries, err := s.ledger.History(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load status history")
	}
	return newHistoryViews(entries), nil
}

func (s *service) load(ctx context.Context, actor authz.Actor, orderID uuid.UUID) (*models.RepairOrder, error) {
	if err := authz.Require(actor, authz.ActionViewOrder, authz.Entity{}); err != nil {
		return nil, err
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapLoadError(err, orderID)
	}
	return order, nil
}

func (s *service) List(ctx context.Context, actor authz.Actor, filters ListFilters, params pagination.Params) (*OrderPage, error) {
	if err := authz.Require(actor, authz.ActionViewOrder, authz.Entity{}); err != nil {
		return nil, err
	}
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}

	switch actor.Role {
	case enums.RoleBranchAdmin:
		if actor.BranchID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "branch admin has no branch")
		}
		branchID := *actor.BranchID
		filters.BranchID = &branchID
	case enums.RoleTechnician:
		userID := actor.UserID
		filters.TechnicianID = &userID
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, filters, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list repair orders")
	}
	views := make([]OrderView, 0, len(rows))
	for i := range rows {
		views = append(views, *NewOrderView(&rows[i]))
	}
	page := pagination.Trim(views, params.Limit, func(v OrderView) pagination.Cursor {
		return pagination.Cursor{CreatedAt: v.CreatedAt, ID: v.ID}
	})
	return &page, nil
}

func (s *service) logTransition(ctx context.Context, order *models.RepairOrder, from, to enums.RepairOrderStatus, batchNo string) {
	if s.logg == nil {
		return
	}
	fields := map[string]any{
		"order_id": order.ID.String(),
		"order_no": order.OrderNo,
		"from":     string(from),
		"to":       string(to),
	}
	if batchNo != "" {
		fields["batch_no"] = batchNo
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "repair order transitioned")
}

func mapLoadError(err error, orderID uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "repair order not found").
			WithDetails(map[string]any{"order_id": orderID.String()})
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load repair order")
}

func invalidTransition(order *models.RepairOrder, trigger Trigger) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, "transition not allowed from current status").
		WithDetails(map[string]any{
			"order_id": order.ID.String(),
			"status":   string(order.Status),
			"trigger":  string(trigger),
		})
}

func actorRef(actor authz.Actor) *outbox.ActorRef {
	return &outbox.ActorRef{
		UserID:   actor.UserID,
		BranchID: actor.BranchID,
		Role:     string(actor.Role),
	}
}

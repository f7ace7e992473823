package repairs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/repairhub-backend/api/middleware"
	"github.com/angelmondragon/repairhub-backend/internal/authz"
	internalrepairs "github.com/angelmondragon/repairhub-backend/internal/repairs"
	"github.com/angelmondragon/repairhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/repairhub-backend/pkg/errors"
	"github.com/angelmondragon/repairhub-backend/pkg/pagination"
)

type stubService struct {
	assign func(ctx context.Context, actor authz.Actor, orderID, technicianID uuid.UUID) (*internalrepairs.OrderView, error)
	start  func(ctx context.Context, actor authz.Actor, orderID uuid.UUID) (*internalrepairs.OrderView, error)
	fail   func(ctx context.Context, actor authz.Actor, orderID uuid.UUID, reason string) (*internalrepairs.OrderView, error)
	list   func(ctx context.Context, actor authz.Actor, filters internalrepairs.ListFilters, params pagination.Params) (*internalrepairs.OrderPage, error)
	get    func(ctx context.Context, actor authz.Actor, orderID uuid.UUID) (*internalrepairs.OrderDetail, error)
}

func (s *stubService) Create(context.Context, authz.Actor, internalrepairs.CreateOrderInput) (*internalrepairs.OrderView, error) {
	panic("not implemented")
}

func (s *stubService) Assign(ctx context.Context, actor authz.Actor, orderID, technicianID uuid.UUID) (*internalrepairs.OrderView, error) {
	return s.assign(ctx, actor, orderID, technicianID)
}

func (s *stubService) Start(ctx context.Context, actor authz.Actor, orderID uuid.UUID) (*internalrepairs.OrderView, error) {
	return s.start(ctx, actor, orderID)
}

func (s *stubService) Complete(context.Context, authz.Actor, uuid.UUID) (*internalrepairs.OrderView, error) {
	panic("not implemented")
}

func (s *stubService) Fail(ctx context.Context, actor authz.Actor, orderID uuid.UUID, reason string) (*internalrepairs.OrderView, error) {
	return s.fail(ctx, actor, orderID, reason)
}

func (s *stubService) Get(ctx context.Context, actor authz.Actor, orderID uuid.UUID) (*internalrepairs.OrderDetail, error) {
	return s.get(ctx, actor, orderID)
}

func (s *stubService) History(context.Context, authz.Actor, uuid.UUID) ([]internalrepairs.HistoryEntryView, error) {
	panic("not implemented")
}

func (s *stubService) List(ctx context.Context, actor authz.Actor, filters internalrepairs.ListFilters, params pagination.Params) (*internalrepairs.OrderPage, error) {
	return s.list(ctx, actor, filters, params)
}

func (s *stubService) CascadeTx(context.Context, *gorm.DB, internalrepairs.CascadeInput) ([]internalrepairs.Transition, error) {
	panic("not implemented")
}

func withRoute(req *http.Request, id string, actor authz.Actor) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = middleware.WithIdentity(ctx, actor.UserID, actor.Role, actor.BranchID)
	return req.WithContext(ctx)
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return payload.Error.Code
}

func TestAssignPassesActorAndTechnician(t *testing.T) {
	orderID := uuid.New()
	techID := uuid.New()
	actor := authz.Actor{UserID: uuid.New(), Role: enums.RoleHQAdmin}

	var gotActor authz.Actor
	var gotTech uuid.UUID
	svc := &stubService{assign: func(ctx context.Context, a authz.Actor, id, tech uuid.UUID) (*internalrepairs.OrderView, error) {
		gotActor = a
		gotTech = tech
		return &internalrepairs.OrderView{ID: id, Status: enums.RepairOrderStatusAssignedToTechnician, TechnicianID: &tech}, nil
	}}

	body := strings.NewReader(`{"technician_id":"` + techID.String() + `"}`)
	req := withRoute(httptest.NewRequest(http.MethodPost, "/api/v1/repairs/"+orderID.String()+"/assign", body), orderID.String(), actor)
	resp := httptest.NewRecorder()
	Assign(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if gotActor.UserID != actor.UserID || gotActor.Role != enums.RoleHQAdmin {
		t.Fatalf("unexpected actor %+v", gotActor)
	}
	if gotTech != techID {
		t.Fatalf("expected technician %s got %s", techID, gotTech)
	}
}

func TestAssignAcceptsCamelCaseTechnicianID(t *testing.T) {
	orderID, techID := uuid.New(), uuid.New()
	var gotTech uuid.UUID
	svc := &stubService{assign: func(_ context.Context, _ authz.Actor, id, tech uuid.UUID) (*internalrepairs.OrderView, error) {
		gotTech = tech
		return &internalrepairs.OrderView{ID: id, Status: enums.RepairOrderStatusAssignedToTechnician, TechnicianID: &tech}, nil
	}}

	body := strings.NewReader(`{"technicianId":"` + techID.String() + `"}`)
	req := withRoute(httptest.NewRequest(http.MethodPost, "/", body), orderID.String(), authz.Actor{UserID: uuid.New(), Role: enums.RoleHQAdmin})
	resp := httptest.NewRecorder()
	Assign(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if gotTech != techID {
		t.Fatalf("expected technician %s got %s", techID, gotTech)
	}
}

func TestAssignRejectsMissingTechnician(t *testing.T) {
	orderID := uuid.New()
	req := withRoute(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)), orderID.String(), authz.Actor{UserID: uuid.New(), Role: enums.RoleHQAdmin})
	resp := httptest.NewRecorder()
	Assign(&stubService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestStartMapsInvalidTransition(t *testing.T) {
	orderID := uuid.New()
	svc := &stubService{start: func(context.Context, authz.Actor, uuid.UUID) (*internalrepairs.OrderView, error) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "transition not allowed from current status")
	}}
	req := withRoute(httptest.NewRequest(http.MethodPatch, "/", nil), orderID.String(), authz.Actor{UserID: uuid.New(), Role: enums.RoleTechnician})
	resp := httptest.NewRecorder()
	Start(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != string(pkgerrors.CodeInvalidTransition) {
		t.Fatalf("expected INVALID_TRANSITION got %s", code)
	}
}

func TestStartRejectsBadOrderID(t *testing.T) {
	req := withRoute(httptest.NewRequest(http.MethodPatch, "/", nil), "not-a-uuid", authz.Actor{})
	resp := httptest.NewRecorder()
	Start(&stubService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestFailRequiresReason(t *testing.T) {
	called := false
	svc := &stubService{fail: func(context.Context, authz.Actor, uuid.UUID, string) (*internalrepairs.OrderView, error) {
		called = true
		return nil, nil
	}}
	req := withRoute(httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"reason":""}`)), uuid.NewString(), authz.Actor{UserID: uuid.New(), Role: enums.RoleTechnician})
	resp := httptest.NewRecorder()
	Fail(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if called {
		t.Fatal("service should not run without a reason")
	}
}

func TestFailTrimsReason(t *testing.T) {
	var got string
	svc := &stubService{fail: func(_ context.Context, _ authz.Actor, id uuid.UUID, reason string) (*internalrepairs.OrderView, error) {
		got = reason
		return &internalrepairs.OrderView{ID: id, Status: enums.RepairOrderStatusRepairFailed}, nil
	}}
	req := withRoute(httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"reason":"  no parts  "}`)), uuid.NewString(), authz.Actor{UserID: uuid.New(), Role: enums.RoleTechnician})
	resp := httptest.NewRecorder()
	Fail(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got != "no parts" {
		t.Fatalf("expected trimmed reason got %q", got)
	}
}

func TestListParsesFilters(t *testing.T) {
	branchID := uuid.New()
	var gotFilters internalrepairs.ListFilters
	var gotParams pagination.Params
	svc := &stubService{list: func(_ context.Context, _ authz.Actor, filters internalrepairs.ListFilters, params pagination.Params) (*internalrepairs.OrderPage, error) {
		gotFilters = filters
		gotParams = params
		return &internalrepairs.OrderPage{Items: []internalrepairs.OrderView{}}, nil
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/repairs?status=at_hq&branch_id="+branchID.String()+"&limit=5&cursor=abc", nil)
	req = req.WithContext(middleware.WithIdentity(req.Context(), uuid.New(), enums.RoleHQAdmin, nil))
	resp := httptest.NewRecorder()
	List(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if gotFilters.Status == nil || *gotFilters.Status != enums.RepairOrderStatusAtHQ {
		t.Fatalf("unexpected status filter %v", gotFilters.Status)
	}
	if gotFilters.BranchID == nil || *gotFilters.BranchID != branchID {
		t.Fatalf("unexpected branch filter %v", gotFilters.BranchID)
	}
	if gotParams.Limit != 5 || gotParams.Cursor != "abc" {
		t.Fatalf("unexpected params %+v", gotParams)
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/repairs?status=lost", nil)
	resp := httptest.NewRecorder()
	List(&stubService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestDetailReturnsNotFound(t *testing.T) {
	svc := &stubService{get: func(context.Context, authz.Actor, uuid.UUID) (*internalrepairs.OrderDetail, error) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "repair order not found")
	}}
	req := withRoute(httptest.NewRequest(http.MethodGet, "/", nil), uuid.NewString(), authz.Actor{UserID: uuid.New(), Role: enums.RoleCourier})
	resp := httptest.NewRecorder()
	Detail(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

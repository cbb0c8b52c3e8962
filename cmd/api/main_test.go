package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dealflow/activity"
	"dealflow/auth"
	"dealflow/deal"
	"dealflow/dispatch"
)

type stubAuthService struct {
	user        *auth.User
	registerErr error
	loginResult auth.LoginResult
	loginErr    error
	actor       auth.Actor
	verifyErr   error
}

func (s *stubAuthService) Register(_ context.Context, _ auth.RegisterRequest) (*auth.User, error) {
	return s.user, s.registerErr
}

func (s *stubAuthService) Login(_ context.Context, _ auth.LoginRequest) (auth.LoginResult, error) {
	return s.loginResult, s.loginErr
}

func (s *stubAuthService) VerifyToken(_ string) (auth.Actor, error) {
	return s.actor, s.verifyErr
}

type stubDealService struct {
	created    deal.Deal
	createErr  error
	detail     deal.Detail
	getErr     error
	sendDetail deal.Detail
	sendErr    error
	submitted  deal.Deal
	submitErr  error
	estimate   deal.Estimate
	estErr     error
	items      []deal.LineItem
	listErr    error
	added      deal.LineItem
	addErr     error
	updated    deal.LineItem
	updateErr  error
	deleteErr  error
}

func (s *stubDealService) CreateDeal(_ context.Context, _ auth.Actor, _ deal.CreateDealParams) (deal.Deal, error) {
	return s.created, s.createErr
}

func (s *stubDealService) Get(_ context.Context, _ auth.Actor, _ string) (deal.Detail, error) {
	return s.detail, s.getErr
}

func (s *stubDealService) SendToEstimating(_ context.Context, _ auth.Actor, _ string, _ deal.SendToEstimatingParams) (deal.Detail, error) {
	return s.sendDetail, s.sendErr
}

func (s *stubDealService) Submit(_ context.Context, _ auth.Actor, _ string, _ deal.SubmitParams) (deal.Deal, error) {
	return s.submitted, s.submitErr
}

func (s *stubDealService) Estimate(_ context.Context, _ auth.Actor, _ string) (deal.Estimate, error) {
	return s.estimate, s.estErr
}

func (s *stubDealService) ListLineItemsForVersion(_ context.Context, _ auth.Actor, _, _ string) ([]deal.LineItem, error) {
	return s.items, s.listErr
}

func (s *stubDealService) AddLineItem(_ context.Context, _ auth.Actor, _, _ string, _ deal.LineItemParams) (deal.LineItem, error) {
	return s.added, s.addErr
}

func (s *stubDealService) UpdateLineItem(_ context.Context, _ auth.Actor, _, _, _ string, _ deal.UpdateLineItemParams) (deal.LineItem, error) {
	return s.updated, s.updateErr
}

func (s *stubDealService) DeleteLineItem(_ context.Context, _ auth.Actor, _, _, _ string) error {
	return s.deleteErr
}

type stubApprovalService struct {
	result deal.ApprovalResult
	err    error
}

func (s *stubApprovalService) Approve(_ context.Context, _ auth.Actor, _ string, _ deal.ApproveParams) (deal.ApprovalResult, error) {
	return s.result, s.err
}

type stubDispatchService struct {
	records []dispatch.Record
	listErr error
	detail  dispatch.Detail
	getErr  error
}

func (s *stubDispatchService) ListDeals(_ context.Context, _ auth.Actor) ([]dispatch.Record, error) {
	return s.records, s.listErr
}

func (s *stubDispatchService) GetDeal(_ context.Context, _ auth.Actor, _ string) (dispatch.Detail, error) {
	return s.detail, s.getErr
}

type stubActivityReader struct {
	records []activity.Record
	err     error
}

func (s *stubActivityReader) ListForDeal(_ context.Context, _, _ string) ([]activity.Record, error) {
	return s.records, s.err
}

var (
	testActor       = auth.Actor{UserID: "user-1", Role: auth.RoleAdmin, CompanyID: "co-1"}
	dispatcherActor = auth.Actor{UserID: "user-2", Role: auth.RoleDispatcher, CompanyID: "co-1"}
)

func withActor(req *http.Request, actor auth.Actor) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), ctxKeyActor, actor))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	return payload.Error.Code
}

func TestHandleCreateDeal_Success(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	server := &Server{dealService: &stubDealService{
		created: deal.Deal{ID: "deal-1", ContactName: "Acme Paving", Stage: deal.StageOpen, CreatedAt: now, UpdatedAt: now},
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/deals", strings.NewReader(`{"contactName":"Acme Paving"}`))
	rec := httptest.NewRecorder()

	server.handleCreateDeal(rec, withActor(req, testActor))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var payload struct {
		Deal dealResponse `json:"deal"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Deal.ID != "deal-1" || payload.Deal.Stage != "OPEN" {
		t.Fatalf("unexpected payload: %+v", payload.Deal)
	}
	if payload.Deal.CreatedAt != now.Format(time.RFC3339) {
		t.Fatalf("createdAt = %s, want %s", payload.Deal.CreatedAt, now.Format(time.RFC3339))
	}
}

func TestHandleCreateDeal_ValidationError(t *testing.T) {
	server := &Server{dealService: &stubDealService{createErr: deal.ErrValidation}}

	req := httptest.NewRequest(http.MethodPost, "/api/deals", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	server.handleCreateDeal(rec, withActor(req, testActor))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if code := decodeError(t, rec); code != "VALIDATION_ERROR" {
		t.Fatalf("code = %s, want VALIDATION_ERROR", code)
	}
}

func TestHandleDealDetail_NotFound(t *testing.T) {
	server := &Server{dealService: &stubDealService{getErr: deal.ErrNotFound}}

	req := httptest.NewRequest(http.MethodGet, "/api/deals/missing", nil)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()

	server.handleDealDetail(rec, withActor(req, testActor))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if code := decodeError(t, rec); code != "NOT_FOUND" {
		t.Fatalf("code = %s, want NOT_FOUND", code)
	}
}

func TestHandleSubmit_Forbidden(t *testing.T) {
	server := &Server{dealService: &stubDealService{submitErr: deal.ErrForbidden}}

	req := httptest.NewRequest(http.MethodPost, "/api/deals/deal-1/submit", nil)
	req.SetPathValue("id", "deal-1")
	rec := httptest.NewRecorder()

	server.handleSubmit(rec, withActor(req, testActor))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if code := decodeError(t, rec); code != "FORBIDDEN" {
		t.Fatalf("code = %s, want FORBIDDEN", code)
	}
}

func TestHandleSubmit_WrongStage(t *testing.T) {
	server := &Server{dealService: &stubDealService{submitErr: deal.ErrInvalidStage}}

	req := httptest.NewRequest(http.MethodPost, "/api/deals/deal-1/submit", nil)
	req.SetPathValue("id", "deal-1")
	rec := httptest.NewRecorder()

	server.handleSubmit(rec, withActor(req, testActor))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if code := decodeError(t, rec); code != "INVALID_STAGE" {
		t.Fatalf("code = %s, want INVALID_STAGE", code)
	}
}

func TestHandleApprove_Success(t *testing.T) {
	server := &Server{approvalService: &stubApprovalService{
		result: deal.ApprovalResult{
			Deal:     deal.Deal{ID: "deal-1", Stage: deal.StageDispatched},
			Version:  deal.Version{ID: "version-1", VersionNumber: 1, Locked: true, DeliveryEnabled: true},
			Document: deal.Document{ID: "doc-1", StorageKey: "proposals/deal-1/v1.html"},
			Handoff:  deal.Handoff{ID: "handoff-1"},
		},
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/deals/deal-1/approve", nil)
	req.SetPathValue("id", "deal-1")
	rec := httptest.NewRecorder()

	server.handleApprove(rec, withActor(req, testActor))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload struct {
		Deal     dealResponse     `json:"deal"`
		Version  versionResponse  `json:"version"`
		Document documentResponse `json:"document"`
		Handoff  handoffResponse  `json:"handoff"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Deal.Stage != "DISPATCHED" || !payload.Version.Locked || payload.Document.ID != "doc-1" || payload.Handoff.ID != "handoff-1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestHandleApprove_Conflict(t *testing.T) {
	server := &Server{approvalService: &stubApprovalService{err: deal.ErrApprovalConflict}}

	req := httptest.NewRequest(http.MethodPost, "/api/deals/deal-1/approve", nil)
	req.SetPathValue("id", "deal-1")
	rec := httptest.NewRecorder()

	server.handleApprove(rec, withActor(req, testActor))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if code := decodeError(t, rec); code != "CONFLICT" {
		t.Fatalf("code = %s, want CONFLICT", code)
	}
}

func TestHandleAddLineItem_LockedVersion(t *testing.T) {
	server := &Server{dealService: &stubDealService{addErr: deal.ErrVersionLocked}}

	body := strings.NewReader(`{"description":"Crew labor","quantity":"10","unitCost":"50","category":"labor"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/deals/deal-1/versions/version-1/line-items", body)
	req.SetPathValue("id", "deal-1")
	req.SetPathValue("versionId", "version-1")
	rec := httptest.NewRecorder()

	server.handleAddLineItem(rec, withActor(req, testActor))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if code := decodeError(t, rec); code != "INVALID_STAGE" {
		t.Fatalf("code = %s, want INVALID_STAGE", code)
	}
}

func TestHandleEstimate_NotYetAvailable(t *testing.T) {
	server := &Server{dealService: &stubDealService{estErr: deal.ErrDeliveryDisabled}}

	req := httptest.NewRequest(http.MethodGet, "/api/deals/deal-1/estimate", nil)
	req.SetPathValue("id", "deal-1")
	rec := httptest.NewRecorder()

	server.handleEstimate(rec, withActor(req, testActor))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleDispatchBoard_Success(t *testing.T) {
	now := time.Now().UTC()
	server := &Server{dispatchService: &stubDispatchService{
		records: []dispatch.Record{
			{HandoffID: "handoff-1", DealID: "deal-1", ContactName: "Acme Paving", Stage: deal.StageDispatched, VersionNumber: 1, HandedOffAt: now},
		},
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/dispatch/deals", nil)
	rec := httptest.NewRecorder()

	server.handleDispatchBoard(rec, withActor(req, testActor))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload struct {
		Items []dispatchResponse `json:"items"`
		Total int                `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Total != 1 || len(payload.Items) != 1 || payload.Items[0].DealID != "deal-1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestHandleDealActivities_DispatcherForbidden(t *testing.T) {
	server := &Server{activityReader: &stubActivityReader{}}

	req := httptest.NewRequest(http.MethodGet, "/api/deals/deal-1/activities", nil)
	req.SetPathValue("id", "deal-1")
	rec := httptest.NewRecorder()

	server.handleDealActivities(rec, withActor(req, dispatcherActor))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if code := decodeError(t, rec); code != "FORBIDDEN" {
		t.Fatalf("code = %s, want FORBIDDEN", code)
	}
}

func TestHandleDealActivities_Success(t *testing.T) {
	dealID := "deal-1"
	server := &Server{activityReader: &stubActivityReader{
		records: []activity.Record{
			{ID: 1, DealID: &dealID, Type: activity.TypeDealCreated, Subject: "Acme Paving", Metadata: []byte(`{}`), OccurredAt: time.Now()},
			{ID: 2, DealID: &dealID, Type: activity.TypeDealSentToEstimating, Subject: "Acme Paving", Metadata: []byte(`{}`), OccurredAt: time.Now()},
		},
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/deals/deal-1/activities", nil)
	req.SetPathValue("id", "deal-1")
	rec := httptest.NewRecorder()

	server.handleDealActivities(rec, withActor(req, testActor))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload struct {
		Items []activityResponse `json:"items"`
		Total int                `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Total != 2 || payload.Items[0].Type != "DEAL_CREATED" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestRoutes_RejectMissingToken(t *testing.T) {
	server := &Server{authService: &stubAuthService{verifyErr: errors.New("bad token")}}
	handler := server.routes()

	req := httptest.NewRequest(http.MethodGet, "/api/dispatch/deals", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if code := decodeError(t, rec); code != "UNAUTHORIZED" {
		t.Fatalf("code = %s, want UNAUTHORIZED", code)
	}
}

func TestRoutes_RejectInvalidToken(t *testing.T) {
	server := &Server{authService: &stubAuthService{verifyErr: errors.New("bad token")}}
	handler := server.routes()

	req := httptest.NewRequest(http.MethodGet, "/api/deals/deal-1", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRoutes_PassesActorThrough(t *testing.T) {
	server := &Server{
		authService: &stubAuthService{actor: testActor},
		dealService: &stubDealService{detail: deal.Detail{Deal: deal.Deal{ID: "deal-1", Stage: deal.StageOpen}}},
	}
	handler := server.routes()

	req := httptest.NewRequest(http.MethodGet, "/api/deals/deal-1", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload detailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Deal.ID != "deal-1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestHandleRegister_DuplicateEmail(t *testing.T) {
	server := &Server{authService: &stubAuthService{registerErr: auth.ErrDuplicateEmail}}

	body := strings.NewReader(`{"email":"a@b.co","password":"longenough","fullName":"A","companyId":"co-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", body)
	rec := httptest.NewRecorder()

	server.handleRegister(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	server := &Server{authService: &stubAuthService{loginErr: auth.ErrInvalidCredentials}}

	body := strings.NewReader(`{"email":"a@b.co","password":"wrong"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", body)
	rec := httptest.NewRecorder()

	server.handleLogin(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

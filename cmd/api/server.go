package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"dealflow/activity"
	"dealflow/auth"
	"dealflow/deal"
	"dealflow/dispatch"
)

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(tokenString string) (auth.Actor, error)
}

type dealService interface {
	CreateDeal(ctx context.Context, actor auth.Actor, params deal.CreateDealParams) (deal.Deal, error)
	Get(ctx context.Context, actor auth.Actor, dealID string) (deal.Detail, error)
	SendToEstimating(ctx context.Context, actor auth.Actor, dealID string, params deal.SendToEstimatingParams) (deal.Detail, error)
	Submit(ctx context.Context, actor auth.Actor, dealID string, params deal.SubmitParams) (deal.Deal, error)
	Estimate(ctx context.Context, actor auth.Actor, dealID string) (deal.Estimate, error)
	ListLineItemsForVersion(ctx context.Context, actor auth.Actor, dealID, versionID string) ([]deal.LineItem, error)
	AddLineItem(ctx context.Context, actor auth.Actor, dealID, versionID string, params deal.LineItemParams) (deal.LineItem, error)
	UpdateLineItem(ctx context.Context, actor auth.Actor, dealID, versionID, itemID string, params deal.UpdateLineItemParams) (deal.LineItem, error)
	DeleteLineItem(ctx context.Context, actor auth.Actor, dealID, versionID, itemID string) error
}

type approvalService interface {
	Approve(ctx context.Context, actor auth.Actor, dealID string, params deal.ApproveParams) (deal.ApprovalResult, error)
}

type dispatchService interface {
	ListDeals(ctx context.Context, actor auth.Actor) ([]dispatch.Record, error)
	GetDeal(ctx context.Context, actor auth.Actor, dealID string) (dispatch.Detail, error)
}

type activityReader interface {
	ListForDeal(ctx context.Context, companyID, dealID string) ([]activity.Record, error)
}

// Server wires the HTTP surface to the domain services.
type Server struct {
	authService     authService
	dealService     dealService
	approvalService approvalService
	dispatchService dispatchService
	activityReader  activityReader
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	mux.Handle("POST /api/deals", s.authed(s.handleCreateDeal))
	mux.Handle("GET /api/deals/{id}", s.authed(s.handleDealDetail))
	mux.Handle("POST /api/deals/{id}/send-to-estimating", s.authed(s.handleSendToEstimating))
	mux.Handle("POST /api/deals/{id}/submit", s.authed(s.handleSubmit))
	mux.Handle("POST /api/deals/{id}/approve", s.authed(s.handleApprove))
	mux.Handle("GET /api/deals/{id}/estimate", s.authed(s.handleEstimate))
	mux.Handle("GET /api/deals/{id}/activities", s.authed(s.handleDealActivities))

	mux.Handle("GET /api/deals/{id}/versions/{versionId}/line-items", s.authed(s.handleListLineItems))
	mux.Handle("POST /api/deals/{id}/versions/{versionId}/line-items", s.authed(s.handleAddLineItem))
	mux.Handle("PATCH /api/deals/{id}/versions/{versionId}/line-items/{itemId}", s.authed(s.handleUpdateLineItem))
	mux.Handle("DELETE /api/deals/{id}/versions/{versionId}/line-items/{itemId}", s.authed(s.handleDeleteLineItem))

	mux.Handle("GET /api/dispatch/deals", s.authed(s.handleDispatchBoard))
	mux.Handle("GET /api/dispatch/deals/{id}", s.authed(s.handleDispatchDeal))

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ctxKey int

const ctxKeyActor ctxKey = iota

// authed verifies the bearer token and stores the actor on the request
// context. Requests without a valid token never reach the handler.
func (s *Server) authed(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}

		actor, err := s.authService.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), ctxKeyActor, actor)))
	})
}

func actorFrom(r *http.Request) (auth.Actor, bool) {
	actor, ok := r.Context().Value(ctxKeyActor).(auth.Actor)
	return actor, ok
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body")
		return
	}

	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"user": toUserResponse(*user)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body")
		return
	}

	result, err := s.authService.Login(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": result.Token,
		"user":  toUserResponse(result.User),
	})
}

func (s *Server) handleCreateDeal(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no actor")
		return
	}

	var params deal.CreateDealParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body")
		return
	}

	created, err := s.dealService.CreateDeal(r.Context(), actor, params)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"deal": toDealResponse(created)})
}

func (s *Server) handleDealDetail(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no actor")
		return
	}

	detail, err := s.dealService.Get(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toDetailResponse(detail))
}

func (s *Server) handleSendToEstimating(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no actor")
		return
	}

	var params deal.SendToEstimatingParams
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body")
			return
		}
	}

	detail, err := s.dealService.SendToEstimating(r.Context(), actor, r.PathValue("id"), params)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toDetailResponse(detail))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no actor")
		return
	}

	var params deal.SubmitParams
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body")
			return
		}
	}

	updated, err := s.dealService.Submit(r.Context(), actor, r.PathValue("id"), params)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deal": toDealResponse(updated)})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no actor")
		return
	}

	var params deal.ApproveParams
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body")
			return
		}
	}

	result, err := s.approvalService.Approve(r.Context(), actor, r.PathValue("id"), params)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deal":              toDealResponse(result.Deal),
		"version":           toVersionResponse(result.Version),
		"document":          toDocumentResponse(result.Document),
		"handoff":           toHandoffResponse(result.Handoff),
		"activitiesCreated": result.ActivitiesCreated,
	})
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no actor")
		return
	}

	est, err := s.dealService.Estimate(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]lineItemResponse, 0, len(est.Items))
	for _, item := range est.Items {
		items = append(items, toLineItemResponse(item))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deal":    toDealResponse(est.Deal),
		"version": toVersionResponse(est.Version),
		"items":   items,
	})
}

func (s *Server) handleDealActivities(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no actor")
		return
	}

	if err := deal.StaffOnly(actor.Role); err != nil {
		writeDomainError(w, err)
		return
	}

	records, err := s.activityReader.ListForDeal(r.Context(), actor.CompanyID, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]activityResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, toActivityResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (s *Server) handleListLineItems(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no actor")
		return
	}

	items, err := s.dealService.ListLineItemsForVersion(r.Context(), actor, r.PathValue("id"), r.PathValue("versionId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]lineItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toLineItemResponse(item))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "total": len(out)})
}

func (s *Server) handleAddLineItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no actor")
		return
	}

	var params deal.LineItemParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body")
		return
	}

	created, err := s.dealService.AddLineItem(r.Context(), actor, r.PathValue("id"), r.PathValue("versionId"), params)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"lineItem": toLineItemResponse(created)})
}

func (s *Server) handleUpdateLineItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no actor")
		return
	}

	var params deal.UpdateLineItemParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body")
		return
	}

	updated, err := s.dealService.UpdateLineItem(r.Context(), actor, r.PathValue("id"), r.PathValue("versionId"), r.PathValue("itemId"), params)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"lineItem": toLineItemResponse(updated)})
}

func (s *Server) handleDeleteLineItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no actor")
		return
	}

	err := s.dealService.DeleteLineItem(r.Context(), actor, r.PathValue("id"), r.PathValue("versionId"), r.PathValue("itemId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDispatchBoard(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no actor")
		return
	}

	records, err := s.dispatchService.ListDeals(r.Context(), actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]dispatchResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, toDispatchResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (s *Server) handleDispatchDeal(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no actor")
		return
	}

	detail, err := s.dispatchService.GetDeal(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]lineItemResponse, 0, len(detail.Items))
	for _, item := range detail.Items {
		items = append(items, toLineItemResponse(item))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deal":  toDispatchResponse(detail.Record),
		"items": items,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

// writeDomainError maps domain sentinels onto the stable error codes of the
// API surface. Anything unrecognized is an internal error and is logged but
// not echoed back.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
	case errors.Is(err, deal.ErrForbidden):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "role not permitted for this action")
	case errors.Is(err, deal.ErrNotFound), errors.Is(err, auth.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
	case errors.Is(err, deal.ErrInvalidStage):
		writeError(w, http.StatusConflict, "INVALID_STAGE", "action not valid for the deal's current stage")
	case errors.Is(err, deal.ErrVersionLocked):
		writeError(w, http.StatusConflict, "INVALID_STAGE", "version is locked")
	case errors.Is(err, deal.ErrDeliveryDisabled):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "estimate is not available yet")
	case errors.Is(err, deal.ErrApprovalConflict):
		writeError(w, http.StatusConflict, "CONFLICT", "concurrent or duplicate approval")
	case errors.Is(err, auth.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, "CONFLICT", "email already registered")
	case errors.Is(err, deal.ErrValidation), errors.Is(err, auth.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

type userResponse struct {
	ID        string `json:"id"`
	CompanyID string `json:"companyId"`
	Email     string `json:"email"`
	FullName  string `json:"fullName"`
	Role      string `json:"role"`
}

func toUserResponse(u auth.User) userResponse {
	return userResponse{
		ID:        u.ID,
		CompanyID: u.CompanyID,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      string(u.Role),
	}
}

type dealResponse struct {
	ID          string  `json:"id"`
	ContactID   *string `json:"contactId,omitempty"`
	ContactName string  `json:"contactName"`
	Stage       string  `json:"stage"`
	AssignedTo  *string `json:"assignedTo,omitempty"`
	ApprovedBy  *string `json:"approvedBy,omitempty"`
	ApprovedAt  *string `json:"approvedAt,omitempty"`
	Subtotal    string  `json:"subtotal"`
	Taxes       string  `json:"taxes"`
	Total       string  `json:"total"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

func toDealResponse(d deal.Deal) dealResponse {
	resp := dealResponse{
		ID:          d.ID,
		ContactID:   d.ContactID,
		ContactName: d.ContactName,
		Stage:       string(d.Stage),
		AssignedTo:  d.AssignedToID,
		ApprovedBy:  d.ApprovedByID,
		Subtotal:    d.Subtotal.StringFixed(2),
		Taxes:       d.Taxes.StringFixed(2),
		Total:       d.Total.StringFixed(2),
		CreatedAt:   d.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   d.UpdatedAt.Format(time.RFC3339),
	}
	if d.ApprovedAt != nil {
		at := d.ApprovedAt.Format(time.RFC3339)
		resp.ApprovedAt = &at
	}
	return resp
}

type versionResponse struct {
	ID              string  `json:"id"`
	VersionNumber   int     `json:"versionNumber"`
	Locked          bool    `json:"locked"`
	DeliveryEnabled bool    `json:"deliveryEnabled"`
	ApprovedAt      *string `json:"approvedAt,omitempty"`
	Subtotal        string  `json:"subtotal"`
	Taxes           string  `json:"taxes"`
	Total           string  `json:"total"`
	CreatedAt       string  `json:"createdAt"`
}

func toVersionResponse(v deal.Version) versionResponse {
	resp := versionResponse{
		ID:              v.ID,
		VersionNumber:   v.VersionNumber,
		Locked:          v.Locked,
		DeliveryEnabled: v.DeliveryEnabled,
		Subtotal:        v.Subtotal.StringFixed(2),
		Taxes:           v.Taxes.StringFixed(2),
		Total:           v.Total.StringFixed(2),
		CreatedAt:       v.CreatedAt.Format(time.RFC3339),
	}
	if v.ApprovedAt != nil {
		at := v.ApprovedAt.Format(time.RFC3339)
		resp.ApprovedAt = &at
	}
	return resp
}

type detailResponse struct {
	Deal     dealResponse      `json:"deal"`
	Versions []versionResponse `json:"versions"`
}

func toDetailResponse(d deal.Detail) detailResponse {
	versions := make([]versionResponse, 0, len(d.Versions))
	for _, v := range d.Versions {
		versions = append(versions, toVersionResponse(v))
	}
	return detailResponse{Deal: toDealResponse(d.Deal), Versions: versions}
}

type lineItemResponse struct {
	ID              string  `json:"id"`
	VersionID       string  `json:"versionId"`
	Description     string  `json:"description"`
	Quantity        string  `json:"quantity"`
	Unit            string  `json:"unit"`
	UnitCost        string  `json:"unitCost"`
	LineTotal       string  `json:"lineTotal"`
	Category        string  `json:"category"`
	Phase           *string `json:"phase,omitempty"`
	Discipline      *string `json:"discipline,omitempty"`
	CustomerVisible bool    `json:"customerVisible"`
	InternalOnly    bool    `json:"internalOnly"`
	SortOrder       int     `json:"sortOrder"`
}

func toLineItemResponse(item deal.LineItem) lineItemResponse {
	return lineItemResponse{
		ID:              item.ID,
		VersionID:       item.VersionID,
		Description:     item.Description,
		Quantity:        item.Quantity.String(),
		Unit:            item.Unit,
		UnitCost:        item.UnitCost.StringFixed(2),
		LineTotal:       item.LineTotal.StringFixed(2),
		Category:        string(item.Category),
		Phase:           item.Phase,
		Discipline:      item.Discipline,
		CustomerVisible: item.CustomerVisible,
		InternalOnly:    item.InternalOnly,
		SortOrder:       item.SortOrder,
	}
}

type documentResponse struct {
	ID          string `json:"id"`
	VersionID   string `json:"versionId"`
	StorageKey  string `json:"storageKey"`
	GeneratedBy string `json:"generatedBy"`
	GeneratedAt string `json:"generatedAt"`
}

func toDocumentResponse(doc deal.Document) documentResponse {
	return documentResponse{
		ID:          doc.ID,
		VersionID:   doc.VersionID,
		StorageKey:  doc.StorageKey,
		GeneratedBy: doc.GeneratedByID,
		GeneratedAt: doc.GeneratedAt.Format(time.RFC3339),
	}
}

type handoffResponse struct {
	ID         string `json:"id"`
	VersionID  string `json:"versionId"`
	DocumentID string `json:"documentId"`
	CreatedAt  string `json:"createdAt"`
}

func toHandoffResponse(h deal.Handoff) handoffResponse {
	return handoffResponse{
		ID:         h.ID,
		VersionID:  h.VersionID,
		DocumentID: h.DocumentID,
		CreatedAt:  h.CreatedAt.Format(time.RFC3339),
	}
}

type activityResponse struct {
	ID         int64           `json:"id"`
	DealID     *string         `json:"dealId,omitempty"`
	ActorID    *string         `json:"actorId,omitempty"`
	Type       string          `json:"type"`
	Subject    string          `json:"subject"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	OccurredAt string          `json:"occurredAt"`
}

func toActivityResponse(rec activity.Record) activityResponse {
	return activityResponse{
		ID:         rec.ID,
		DealID:     rec.DealID,
		ActorID:    rec.ActorID,
		Type:       string(rec.Type),
		Subject:    rec.Subject,
		Metadata:   rec.Metadata,
		OccurredAt: rec.OccurredAt.Format(time.RFC3339),
	}
}

type dispatchResponse struct {
	HandoffID     string  `json:"handoffId"`
	DealID        string  `json:"dealId"`
	ContactName   string  `json:"contactName"`
	Stage         string  `json:"stage"`
	VersionID     string  `json:"versionId"`
	VersionNumber int     `json:"versionNumber"`
	Subtotal      string  `json:"subtotal"`
	Taxes         string  `json:"taxes"`
	Total         string  `json:"total"`
	DocumentID    string  `json:"documentId"`
	StorageKey    string  `json:"storageKey"`
	ApprovedAt    *string `json:"approvedAt,omitempty"`
	HandedOffAt   string  `json:"handedOffAt"`
}

func toDispatchResponse(rec dispatch.Record) dispatchResponse {
	resp := dispatchResponse{
		HandoffID:     rec.HandoffID,
		DealID:        rec.DealID,
		ContactName:   rec.ContactName,
		Stage:         string(rec.Stage),
		VersionID:     rec.VersionID,
		VersionNumber: rec.VersionNumber,
		Subtotal:      rec.Subtotal.StringFixed(2),
		Taxes:         rec.Taxes.StringFixed(2),
		Total:         rec.Total.StringFixed(2),
		DocumentID:    rec.DocumentID,
		StorageKey:    rec.StorageKey,
		HandedOffAt:   rec.HandedOffAt.Format(time.RFC3339),
	}
	if rec.ApprovedAt != nil {
		at := rec.ApprovedAt.Format(time.RFC3339)
		resp.ApprovedAt = &at
	}
	return resp
}

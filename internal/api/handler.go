package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/buildledger/heron/internal/docstore"
	"github.com/buildledger/heron/internal/domain"
	"github.com/buildledger/heron/internal/duplicate"
	"github.com/buildledger/heron/internal/engine"
	"github.com/buildledger/heron/internal/extract"
	"github.com/buildledger/heron/internal/repository"
	"github.com/buildledger/heron/internal/rules"
)

// GlobalTenantID is used for screening rules that apply to all tenants.
const GlobalTenantID = "*"

// reportTTL bounds how long a scored report may be served from cache before
// a report request re-scores from the stored extraction.
const reportTTL = 15 * time.Minute

// reportCache is satisfied by the cache implementations that store parsed
// fraud reports in addition to raw bytes.
type reportCache interface {
	GetReport(ctx context.Context, tenantID string, billID string) (*domain.FraudReport, error)
	SetReport(ctx context.Context, tenantID string, billID string, report *domain.FraudReport, ttl time.Duration) error
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	docs      *docstore.Store
	extractor domain.Extractor
	engine    *engine.Engine
	screening *rules.Engine
	maxUpload int64
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, docs *docstore.Store, extractor domain.Extractor, eng *engine.Engine, screening *rules.Engine, maxUpload int64, version string) *Handler {
	if maxUpload <= 0 {
		maxUpload = 25 << 20
	}
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		docs:      docs,
		extractor: extractor,
		engine:    eng,
		screening: screening,
		maxUpload: maxUpload,
		version:   version,
	}
}

// UploadResponse is the response for POST /bills.
type UploadResponse struct {
	BillID         string                `json:"billId"`
	ProjectID      string                `json:"projectId"`
	VendorName     string                `json:"vendorName,omitempty"`
	TotalAmount    float64               `json:"totalAmount"`
	Status         domain.BillStatus     `json:"status"`
	FraudScore     float64               `json:"fraudScore"`
	IsSuspicious   bool                  `json:"isSuspicious"`
	Recommendation domain.Recommendation `json:"recommendation"`
	Reasons        []string              `json:"reasons,omitempty"`
	Metadata       struct {
		TraceID   string `json:"traceId"`
		ExtractMs int64  `json:"extractMs"`
		TotalMs   int64  `json:"totalMs"`
		Version   string `json:"version"`
	} `json:"metadata"`
}

// UploadBill handles POST /bills: store the document, fingerprint it, extract
// the structured invoice, score it synchronously and persist the result.
func (h *Handler) UploadBill(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid multipart request: " + err.Error(),
		})
		return
	}

	projectID := r.URL.Query().Get("project")
	if projectID == "" {
		projectID = r.FormValue("project")
	}
	if projectID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "project is required",
		})
		return
	}

	file, header, err := r.FormFile("document")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "document file is required",
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "failed to read document",
		})
		return
	}

	billID := uuid.New().String()

	extractStart := time.Now()
	inv := h.extractInvoice(ctx, r.FormValue("extraction"), data, billID)
	extractMs := time.Since(extractStart).Milliseconds()

	now := time.Now().UTC()
	bill := &domain.Bill{
		ID:          billID,
		TenantID:    tenantID,
		Project:     projectID,
		Status:      domain.StatusUploaded,
		Fingerprint: duplicate.Fingerprint(data),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if inv != nil {
		bill.VendorName = inv.VendorName
		if inv.TotalAmount != nil {
			bill.TotalAmount = *inv.TotalAmount
		}
	}

	// The bill is saved before scoring so duplicate detection reads a
	// consistent store; the detector excludes the bill's own id.
	if err := h.repo.SaveBill(ctx, bill); err != nil {
		slog.Error("failed to save bill", "bill_id", billID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save bill",
		})
		return
	}
	if inv != nil && len(inv.LineItems) > 0 {
		if err := h.repo.SaveLineItems(ctx, billID, extract.ToLineItems(billID, inv.LineItems)); err != nil {
			slog.Error("failed to save line items", "bill_id", billID, "error", err)
		}
	}

	if h.docs != nil {
		if _, err := h.docs.SaveDocument(tenantID, projectID, billID, header.Filename, data); err != nil {
			slog.Error("failed to store document", "bill_id", billID, "error", err)
		}
		if inv != nil && len(inv.Raw) > 0 {
			if err := h.docs.SavePayload(tenantID, projectID, billID, inv.Raw); err != nil {
				slog.Error("failed to store extraction payload", "bill_id", billID, "error", err)
			}
		}
	}

	billsUploaded.WithLabelValues(tenantID).Inc()

	report := h.engine.Score(ctx, bill, inv)
	report.Metadata.TraceID = traceID
	report.Metadata.ExtractMs = extractMs
	report.Metadata.TotalMs = time.Since(start).Milliseconds()

	reportsByRecommendation.WithLabelValues(string(report.Recommendation)).Inc()

	if err := h.repo.UpdateBillScore(ctx, tenantID, billID, report.FraudScore, report.ReasonText()); err != nil {
		slog.Error("failed to save score", "bill_id", billID, "error", err)
	}
	if err := h.repo.UpdateBillStatus(ctx, tenantID, billID, domain.StatusAnalysed); err != nil {
		slog.Error("failed to update status", "bill_id", billID, "error", err)
	}

	h.cacheReport(ctx, tenantID, report)

	if h.bus != nil {
		payload, _ := json.Marshal(report)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicBillScored, payload); err != nil {
			slog.Error("failed to publish scored report", "bill_id", billID, "error", err)
		}
	}

	resp := UploadResponse{
		BillID:         billID,
		ProjectID:      projectID,
		VendorName:     bill.VendorName,
		TotalAmount:    bill.TotalAmount,
		Status:         domain.StatusAnalysed,
		FraudScore:     report.FraudScore,
		IsSuspicious:   report.IsSuspicious,
		Recommendation: report.Recommendation,
		Reasons:        report.Reasons,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.ExtractMs = extractMs
	resp.Metadata.TotalMs = report.Metadata.TotalMs
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusCreated, resp)
}

// extractInvoice resolves the structured invoice for an upload: an inline
// extraction payload wins, then the extraction collaborator. A nil result is
// acceptable; the validators degrade missing data to "cannot verify".
func (h *Handler) extractInvoice(ctx context.Context, inline string, document []byte, billID string) *domain.ExtractedInvoice {
	if inline != "" {
		inv, err := extract.FromPayload([]byte(inline))
		if err == nil {
			return inv
		}
		slog.Warn("inline extraction payload rejected", "bill_id", billID, "error", err)
	}

	if h.extractor != nil {
		inv, err := h.extractor.AnalyzeInvoice(ctx, document)
		if err == nil {
			return inv
		}
		slog.Warn("extraction collaborator failed", "bill_id", billID, "error", err)
	}

	return nil
}

// ListBills returns all bills for the tenant.
func (h *Handler) ListBills(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	bills, err := h.repo.ListBills(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list bills", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list bills",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"bills": bills,
		"count": len(bills),
	})
}

// ListBillsByProject returns the tenant's bills for one project.
func (h *Handler) ListBillsByProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	projectID := chi.URLParam(r, "projectID")

	bills, err := h.repo.ListBillsByProject(ctx, tenantID, projectID)
	if err != nil {
		slog.Error("failed to list project bills", "project_id", projectID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list bills",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"projectId": projectID,
		"bills":     bills,
		"count":     len(bills),
	})
}

// GetBill retrieves a bill by ID.
func (h *Handler) GetBill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	billID := chi.URLParam(r, "id")

	bill, err := h.repo.GetBill(ctx, tenantID, billID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "bill not found",
			})
			return
		}
		slog.Error("failed to get bill", "bill_id", billID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get bill",
		})
		return
	}

	writeJSON(w, http.StatusOK, bill)
}

// GetBillReport returns the fraud report for a bill, re-scoring on demand
// from the stored extraction when no cached report exists.
func (h *Handler) GetBillReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	billID := chi.URLParam(r, "id")

	if report := h.cachedReport(ctx, tenantID, billID); report != nil {
		writeJSON(w, http.StatusOK, report)
		return
	}

	bill, err := h.repo.GetBill(ctx, tenantID, billID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "bill not found",
			})
			return
		}
		slog.Error("failed to get bill", "bill_id", billID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get bill",
		})
		return
	}

	report := h.engine.Score(ctx, bill, h.invoiceFor(ctx, bill))
	report.Metadata.TraceID = GetTraceID(ctx)

	h.cacheReport(ctx, tenantID, report)

	writeJSON(w, http.StatusOK, report)
}

// invoiceFor reconstructs the extracted invoice for re-scoring: from the
// stored extraction payload when one exists, otherwise from persisted line
// items.
func (h *Handler) invoiceFor(ctx context.Context, bill *domain.Bill) *domain.ExtractedInvoice {
	if h.docs != nil {
		if payload, err := h.docs.ReadPayload(bill.TenantID, bill.Project, bill.ID); err == nil && len(payload) > 0 {
			if inv, err := extract.FromPayload(payload); err == nil {
				return inv
			}
		}
	}

	amount := bill.TotalAmount
	inv := &domain.ExtractedInvoice{
		VendorName:  bill.VendorName,
		TotalAmount: &amount,
	}

	items, err := h.repo.GetLineItems(ctx, bill.ID)
	if err != nil {
		slog.Warn("failed to load line items", "bill_id", bill.ID, "error", err)
		return inv
	}
	for _, item := range items {
		extracted := domain.ExtractedLineItem{Description: item.Description}
		if item.Quantity != nil {
			extracted.Quantity = *item.Quantity
		}
		if item.UnitRate != nil {
			extracted.UnitRate = *item.UnitRate
		}
		if item.LineTotal != nil {
			extracted.LineTotal = *item.LineTotal
		}
		inv.LineItems = append(inv.LineItems, extracted)
	}
	return inv
}

func (h *Handler) cachedReport(ctx context.Context, tenantID, billID string) *domain.FraudReport {
	rc, ok := h.cache.(reportCache)
	if !ok {
		return nil
	}
	report, err := rc.GetReport(ctx, tenantID, billID)
	if err != nil {
		slog.Warn("report cache read failed", "bill_id", billID, "error", err)
		return nil
	}
	return report
}

func (h *Handler) cacheReport(ctx context.Context, tenantID string, report *domain.FraudReport) {
	rc, ok := h.cache.(reportCache)
	if !ok {
		return
	}
	if err := rc.SetReport(ctx, tenantID, report.BillID, report, reportTTL); err != nil {
		slog.Warn("report cache write failed", "bill_id", report.BillID, "error", err)
	}
}

// ApproveBill handles POST /bills/{id}/approve.
func (h *Handler) ApproveBill(w http.ResponseWriter, r *http.Request) {
	h.decideBill(w, r, domain.StatusApproved)
}

// RejectBill handles POST /bills/{id}/reject.
func (h *Handler) RejectBill(w http.ResponseWriter, r *http.Request) {
	h.decideBill(w, r, domain.StatusRejected)
}

// decideBill applies a terminal approval decision to a bill.
func (h *Handler) decideBill(w http.ResponseWriter, r *http.Request, status domain.BillStatus) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	billID := chi.URLParam(r, "id")

	bill, err := h.repo.GetBill(ctx, tenantID, billID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "bill not found",
			})
			return
		}
		slog.Error("failed to get bill", "bill_id", billID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get bill",
		})
		return
	}

	if !bill.Status.CanTransition(status) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "cannot move bill from " + string(bill.Status) + " to " + string(status),
		})
		return
	}

	if err := h.repo.UpdateBillStatus(ctx, tenantID, billID, status); err != nil {
		slog.Error("failed to update status", "bill_id", billID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to update status",
		})
		return
	}

	billDecisions.WithLabelValues(string(status)).Inc()

	if h.bus != nil {
		payload, _ := json.Marshal(map[string]string{
			"billId":   billID,
			"tenantId": tenantID,
			"status":   string(status),
		})
		if err := h.bus.Publish(ctx, tenantID, domain.TopicBillDecision, payload); err != nil {
			slog.Error("failed to publish decision", "bill_id", billID, "error", err)
		}
	}

	slog.Info("bill decided",
		"bill_id", billID,
		"tenant_id", tenantID,
		"status", status,
	)

	writeJSON(w, http.StatusOK, map[string]string{
		"billId": billID,
		"status": string(status),
	})
}

// scoringMessage mirrors the worker's queue message shape.
type scoringMessage struct {
	BillID   string          `json:"billId"`
	TenantID string          `json:"tenantId"`
	TraceID  string          `json:"traceId,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// ReanalyzeBill queues a bill for asynchronous re-scoring from its stored
// extraction payload.
func (h *Handler) ReanalyzeBill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	billID := chi.URLParam(r, "id")

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	bill, err := h.repo.GetBill(ctx, tenantID, billID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "bill not found",
			})
			return
		}
		slog.Error("failed to get bill", "bill_id", billID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get bill",
		})
		return
	}

	msg := scoringMessage{
		BillID:   billID,
		TenantID: tenantID,
		TraceID:  GetTraceID(ctx),
	}
	if h.docs != nil {
		if payload, err := h.docs.ReadPayload(tenantID, bill.Project, billID); err == nil && len(payload) > 0 {
			msg.Payload = payload
		}
	}

	payload, _ := json.Marshal(msg)
	if err := h.bus.Publish(ctx, tenantID, domain.TopicReanalyze, payload); err != nil {
		slog.Error("failed to queue re-analysis", "bill_id", billID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to queue re-analysis",
		})
		return
	}

	// Drop the stale cached report; key layout matches the report cache.
	if h.cache != nil {
		_ = h.cache.Delete(ctx, tenantID, "report:"+billID)
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"billId": billID,
		"status": "queued",
	})
}

// BudgetRequest is the request body for POST /projects.
type BudgetRequest struct {
	ProjectID   string  `json:"projectId"`
	TotalAmount float64 `json:"totalAmount"`
	Materials   float64 `json:"materials,omitempty"`
	Labor       float64 `json:"labor,omitempty"`
	Equipment   float64 `json:"equipment,omitempty"`
	Contingency float64 `json:"contingency,omitempty"`
}

// CreateProject creates or replaces a project budget.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.ProjectID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "projectId is required",
		})
		return
	}
	if req.TotalAmount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "totalAmount must be positive",
		})
		return
	}

	now := time.Now().UTC()
	budget := &domain.Budget{
		ProjectID:   req.ProjectID,
		TotalAmount: req.TotalAmount,
		Materials:   req.Materials,
		Labor:       req.Labor,
		Equipment:   req.Equipment,
		Contingency: req.Contingency,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.repo.SaveBudget(ctx, budget); err != nil {
		slog.Error("failed to save budget", "project_id", req.ProjectID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save budget",
		})
		return
	}

	slog.Info("project budget saved", "project_id", req.ProjectID, "total", req.TotalAmount)
	writeJSON(w, http.StatusCreated, budget)
}

// ListProjects returns the budget/spend rollup for all projects.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	projects, err := h.repo.ListProjects(ctx)
	if err != nil {
		slog.Error("failed to list projects", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list projects",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"projects": projects,
		"count":    len(projects),
	})
}

// GetProjectBudget returns a project's budget with its approved spending.
func (h *Handler) GetProjectBudget(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := chi.URLParam(r, "id")

	budget, err := h.repo.GetBudget(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "budget not found",
			})
			return
		}
		slog.Error("failed to get budget", "project_id", projectID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get budget",
		})
		return
	}

	spent, err := h.repo.GetProjectSpending(ctx, projectID)
	if err != nil {
		slog.Error("failed to get project spending", "project_id", projectID, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"budget":    budget,
		"spent":     spent,
		"remaining": budget.TotalAmount - spent,
	})
}

// CreateRuleRequest is the request body for creating a screening rule.
type CreateRuleRequest struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Expression  string                 `json:"expression"`
	Bands       []domain.ScreeningBand `json:"bands"`
	Enabled     bool                   `json:"enabled"`
}

// CreateRule validates, loads and persists a screening rule. Rules are saved
// globally (tenant_id = "*") so they apply to all tenants.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	// Every scoring band must explain itself: a band that adds score
	// without a reason would break the reasons-accompany-score contract of
	// the fraud report.
	for _, band := range req.Bands {
		if band.Score > 0 && band.Reason == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "bands with a positive score require a reason",
			})
			return
		}
	}

	rule := &domain.ScreeningRule{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Bands:       req.Bands,
		Enabled:     req.Enabled,
	}

	if err := h.screening.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if rule.Enabled {
		if err := h.screening.LoadRule(rule); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "failed to load rule: " + err.Error(),
			})
			return
		}
	}

	if err := h.repo.SaveScreeningRule(ctx, GlobalTenantID, rule); err != nil {
		slog.Error("failed to save screening rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	slog.Info("screening rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, rule)
}

// ListRules returns all screening rules loaded in the engine.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.screening.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": loadedRules,
		"count": len(loadedRules),
	})
}

// GetRule retrieves a screening rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	for _, rule := range h.screening.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// ReloadRules reloads all enabled screening rules from the database into the
// engine without a restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbRules, err := h.repo.ListScreeningRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list screening rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.screening.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("screening rules reloaded", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

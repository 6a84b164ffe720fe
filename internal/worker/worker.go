// Package worker provides async bill scoring from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/buildledger/heron/internal/domain"
	"github.com/buildledger/heron/internal/engine"
	"github.com/buildledger/heron/internal/extract"
)

// Worker scores uploaded bills asynchronously from the EventBus. The same
// path serves first-time scoring and re-analysis requests.
type Worker struct {
	bus    domain.EventBus
	repo   domain.Repository
	engine *engine.Engine

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via the
	// global subscription)
	TenantIDs []string

	// WorkerCount is the number of concurrent workers per tenant
	WorkerCount int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, eng *engine.Engine) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		engine: eng,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" tenant ID
	// In production, you'd want to subscribe with wildcards or JetStream
	for _, topic := range []string{domain.TopicBillUploaded, domain.TopicReanalyze} {
		sub, err := w.bus.Subscribe(w.ctx, "_global", topic, w.handleMessage)
		if err != nil {
			return err
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	for _, topic := range []string{domain.TopicBillUploaded, domain.TopicReanalyze} {
		sub, err := w.bus.Subscribe(w.ctx, tenantID, topic, func(ctx context.Context, msg *domain.Message) error {
			return w.scoreBill(ctx, tenantID, msg)
		})
		if err != nil {
			return err
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topics", []string{domain.TopicBillUploaded, domain.TopicReanalyze},
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.scoreBill(ctx, msg.TenantID, msg)
}

// BillMessage is the message payload for bill scoring. Payload carries the
// extraction provider's output so a re-analysis never needs to re-extract.
type BillMessage struct {
	BillID   string          `json:"billId"`
	TenantID string          `json:"tenantId"`
	TraceID  string          `json:"traceId,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// scoreBill runs one bill through the scoring engine and persists the result.
func (w *Worker) scoreBill(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var billMsg BillMessage
	if err := json.Unmarshal(msg.Payload, &billMsg); err != nil {
		slog.Error("failed to parse bill message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if billMsg.TenantID != "" {
		tenantID = billMsg.TenantID
	}

	traceID := billMsg.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("scoring bill",
		"bill_id", billMsg.BillID,
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	bill, err := w.repo.GetBill(ctx, tenantID, billMsg.BillID)
	if err != nil {
		slog.Error("failed to load bill",
			"bill_id", billMsg.BillID,
			"error", err,
		)
		return err
	}

	inv := w.invoiceFor(ctx, bill, billMsg.Payload)

	report := w.engine.Score(ctx, bill, inv)
	report.Metadata.TraceID = traceID
	report.Metadata.TotalMs = time.Since(start).Milliseconds()

	if err := w.repo.UpdateBillScore(ctx, tenantID, bill.ID, report.FraudScore, report.ReasonText()); err != nil {
		slog.Error("failed to save score",
			"bill_id", bill.ID,
			"error", err,
		)
	}
	if bill.Status.CanTransition(domain.StatusAnalysed) {
		if err := w.repo.UpdateBillStatus(ctx, tenantID, bill.ID, domain.StatusAnalysed); err != nil {
			slog.Error("failed to update status",
				"bill_id", bill.ID,
				"error", err,
			)
		}
	}

	resultPayload, _ := json.Marshal(report)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicBillScored, resultPayload); err != nil {
		slog.Error("failed to publish scored report",
			"bill_id", bill.ID,
			"error", err,
		)
	}

	slog.Info("bill scored",
		"bill_id", bill.ID,
		"tenant_id", tenantID,
		"score", report.FraudScore,
		"recommendation", report.Recommendation,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// invoiceFor reconstructs the extracted invoice: from the message payload
// when it carries one, otherwise from the stored line items.
func (w *Worker) invoiceFor(ctx context.Context, bill *domain.Bill, payload json.RawMessage) *domain.ExtractedInvoice {
	if len(payload) > 0 {
		inv, err := extract.FromPayload(payload)
		if err == nil {
			return inv
		}
		slog.Warn("failed to parse extraction payload, falling back to stored line items",
			"bill_id", bill.ID,
			"error", err,
		)
	}

	amount := bill.TotalAmount
	inv := &domain.ExtractedInvoice{
		VendorName:  bill.VendorName,
		TotalAmount: &amount,
	}

	items, err := w.repo.GetLineItems(ctx, bill.ID)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("failed to load line items",
			"bill_id", bill.ID,
			"error", err,
		)
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

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}

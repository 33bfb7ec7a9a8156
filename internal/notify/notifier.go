// Package notify delivers advisory signals about a seller's ledger to chat
// channels. A Notifier fans each event out to every configured Sender and can
// be restricted to a subset of event types.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/tariff"
)

// Event types.
const (
	EventTariffsEstimated = "tariffs_estimated"
	EventFetchFailed      = "fetch_failed"
	EventInventoryLoss    = "inventory_loss"
	EventReportReady      = "report_ready"
)

// maxLossLines caps the SKUs listed in an inventory-loss message.
const maxLossLines = 10

// Sender is a single delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches events to its senders. With an empty event filter every
// event passes.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether event would be delivered.
func (n *Notifier) Enabled(event string) bool {
	if n == nil || len(n.senders) == 0 {
		return false
	}
	return len(n.events) == 0 || n.events[event]
}

// Notify sends title and message for event to every sender. A failing sender
// does not stop delivery to the others; their errors are joined.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled(event) {
		return nil
	}
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", event),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// TariffsEstimated reports products whose fees are estimated or unresolved.
// Nothing is sent when every tariff is real.
func (n *Notifier) TariffsEstimated(ctx context.Context, seller string, s tariff.Summary) error {
	if !s.Pending() {
		return nil
	}
	msg := fmt.Sprintf("seller %s: %d real, %d estimated, %d unresolved tariffs",
		seller, s.Real, s.Estimated, s.Unresolved)
	return n.Notify(ctx, EventTariffsEstimated, "Tariffs estimated", msg)
}

// FetchFailed reports a source whose refresh exhausted its retries.
func (n *Notifier) FetchFailed(ctx context.Context, seller string, mp domain.Marketplace, err error) error {
	msg := fmt.Sprintf("seller %s: %s refresh failed, serving cached data: %v", seller, mp, err)
	return n.Notify(ctx, EventFetchFailed, "Marketplace fetch failed", msg)
}

// InventoryLoss lists SKUs with unexplained stock loss.
func (n *Notifier) InventoryLoss(ctx context.Context, seller string, losses []domain.ReconciliationRecord) error {
	if len(losses) == 0 {
		return nil
	}
	var b strings.Builder
	total := 0
	for i, r := range losses {
		total += r.Lost
		if i < maxLossLines {
			fmt.Fprintf(&b, "\n%s %s: %d lost", r.Key, r.Name, r.Lost)
		}
	}
	if len(losses) > maxLossLines {
		fmt.Fprintf(&b, "\n... and %d more", len(losses)-maxLossLines)
	}
	msg := fmt.Sprintf("seller %s: %d units lost across %d SKUs%s", seller, total, len(losses), b.String())
	return n.Notify(ctx, EventInventoryLoss, "Inventory loss detected", msg)
}

// ReportReady announces an archived report.
func (n *Notifier) ReportReady(ctx context.Context, r domain.ProfitReport, path string) error {
	msg := fmt.Sprintf("seller %s %s..%s: revenue %.0f, net %.0f, margin %.1f%%, %d products",
		r.Seller, r.From.Format("2006-01-02"), r.To.Format("2006-01-02"),
		r.Totals.Revenue, r.Totals.NetProfit, r.Totals.ProfitMargin*100, len(r.Products))
	if path != "" {
		msg += "\n" + path
	}
	return n.Notify(ctx, EventReportReady, "Profit report ready", msg)
}

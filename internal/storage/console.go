package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mselser95/mempool-engine/pkg/types"
	"go.uber.org/zap"
)

// ConsoleStorage implements AuditLog by pretty-printing to a writer.
type ConsoleStorage struct {
	out    io.Writer
	logger *zap.Logger
}

// NewConsoleStorage creates a new console storage writing to stdout.
func NewConsoleStorage(logger *zap.Logger) *ConsoleStorage {
	return NewConsoleStorageTo(os.Stdout, logger)
}

// NewConsoleStorageTo creates a console storage writing to out.
func NewConsoleStorageTo(out io.Writer, logger *zap.Logger) *ConsoleStorage {
	logger.Info("console-storage-initialized")
	return &ConsoleStorage{
		out:    out,
		logger: logger,
	}
}

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// RecordCandidate prints one scored candidate.
func (c *ConsoleStorage) RecordCandidate(_ context.Context, rec *types.AuditRecord) error {
	var b strings.Builder

	b.WriteString("\n" + rule + "\n")
	if rec.Accepted {
		fmt.Fprintf(&b, "🎯 OPPORTUNITY ACCEPTED  #%d\n", rec.Seq)
	} else {
		fmt.Fprintf(&b, "🚫 CANDIDATE REJECTED  #%d\n", rec.Seq)
	}
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Token:    %s\n", rec.Token)
	fmt.Fprintf(&b, "Kind:     %s\n", rec.Kind)
	fmt.Fprintf(&b, "Intents:  %d\n", rec.IntentCount)
	fmt.Fprintf(&b, "Time:     %s\n", rec.ScoredAt.Format("2006-01-02 15:04:05.000"))
	if rec.Reason != "" {
		fmt.Fprintf(&b, "Reason:   %s\n", rec.Reason)
	}
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "💰 ECONOMICS\n")
	fmt.Fprintf(&b, "  Gross Profit:    %.6f\n", rec.GrossProfit)
	fmt.Fprintf(&b, "  Estimated Cost:  %.6f\n", rec.EstimatedCost)
	fmt.Fprintf(&b, "  Net Profit:      %.6f\n", rec.NetProfit)
	fmt.Fprintf(&b, "  Confidence:      %.3f\n", rec.Confidence)
	if len(rec.RiskFlags) > 0 {
		fmt.Fprintf(&b, "  Risk Flags:      %s\n", strings.Join(rec.RiskFlags, ", "))
	}
	b.WriteString(rule + "\n")

	_, err := io.WriteString(c.out, b.String())
	if err != nil {
		return fmt.Errorf("write candidate: %w", err)
	}
	return nil
}

// RecordSubmission prints a plan's terminal outcome on one line.
func (c *ConsoleStorage) RecordSubmission(_ context.Context, res *types.SubmissionResult) error {
	_, err := fmt.Fprintf(c.out, "📦 PLAN %s %s attempts=%d cost=%.6f/%.6f %s\n",
		res.PlanID, res.State, res.Attempts, res.RealizedCost, res.MaxCost, res.Reason)
	if err != nil {
		return fmt.Errorf("write submission: %w", err)
	}
	return nil
}

// Close is a no-op for console storage.
func (c *ConsoleStorage) Close() error {
	c.logger.Info("closing-console-storage")
	return nil
}

// Package duplicate detects resubmitted bills: exact content duplicates via
// document fingerprints and near-duplicates by vendor, amount, and recency.
package duplicate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/buildledger/heron/internal/domain"
	"github.com/buildledger/heron/internal/history"
)

// Fingerprint returns the hex SHA-256 digest of the uploaded document bytes.
func Fingerprint(document []byte) string {
	sum := sha256.Sum256(document)
	return hex.EncodeToString(sum[:])
}

// Detector combines the two duplicate signals. Both may fire on one bill and
// their scores add.
type Detector struct {
	history *history.Service
	cfg     domain.ScoringConfig
	now     func() time.Time
}

// NewDetector creates a duplicate detector.
func NewDetector(hist *history.Service, cfg domain.ScoringConfig) *Detector {
	return &Detector{history: hist, cfg: cfg, now: time.Now}
}

// Check evaluates both duplicate signals for the bill. History errors degrade
// to a neutral finding; they never abort the scoring run.
func (d *Detector) Check(ctx context.Context, bill *domain.Bill) domain.ValidationFinding {
	finding := domain.ValidationFinding{Signal: domain.SignalDuplicate}

	if original, err := d.history.FindByFingerprint(ctx, bill.TenantID, bill.Fingerprint, bill.Project); err == nil && original != nil && original.ID != bill.ID {
		finding.Score += d.cfg.ExactDuplicateScore
		finding.Reasons = append(finding.Reasons,
			fmt.Sprintf("identical document already uploaded as bill %s", original.ID))
		if finding.Details == nil {
			finding.Details = map[string]any{}
		}
		finding.Details["duplicate_of"] = original.ID
	}

	if bill.VendorName == "" || bill.TotalAmount <= 0 {
		return finding
	}

	since := d.now().Add(-d.cfg.NearDuplicateWindow)
	recent, err := d.history.RecentBills(ctx, bill.TenantID, bill.VendorName, bill.Project, since, bill.ID)
	if err != nil {
		return finding
	}

	for _, prior := range recent {
		if math.Abs(prior.TotalAmount-bill.TotalAmount) < bill.TotalAmount*d.cfg.NearDuplicateRatio {
			finding.Score += d.cfg.NearDuplicateScore
			finding.Reasons = append(finding.Reasons,
				fmt.Sprintf("similar bill from %s found in last %d days", bill.VendorName, int(d.cfg.NearDuplicateWindow.Hours()/24)))
			if finding.Details == nil {
				finding.Details = map[string]any{}
			}
			finding.Details["near_duplicate_of"] = prior.ID
			break
		}
	}

	return finding
}

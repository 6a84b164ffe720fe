// Package history provides read-only billing-history queries for the scoring
// engine, with short-lived caching in front of the repository.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/buildledger/heron/internal/domain"
)

// statsTTL bounds staleness of cached vendor aggregates. Duplicate lookups
// are never cached: they must see the most recent writes.
const statsTTL = time.Minute

// Service answers the engine's history questions: recent bills by vendor,
// rejected-bill counts, vendor amount statistics, and fingerprint lookups.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a new history service. cache may be nil.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// RecentBills returns the vendor's bills in the project since the given time,
// excluding the bill currently being scored.
func (s *Service) RecentBills(ctx context.Context, tenantID, vendor, projectID string, since time.Time, excludeBillID string) ([]*domain.Bill, error) {
	if tenantID == "" || vendor == "" {
		return nil, fmt.Errorf("tenantID and vendor are required")
	}
	return s.repo.GetRecentBills(ctx, tenantID, vendor, projectID, since, excludeBillID)
}

// FindByFingerprint returns the earlier bill with identical document content
// in the same project, or nil.
func (s *Service) FindByFingerprint(ctx context.Context, tenantID, fingerprint, projectID string) (*domain.Bill, error) {
	if fingerprint == "" {
		return nil, nil
	}
	return s.repo.FindByFingerprint(ctx, tenantID, fingerprint, projectID)
}

// RejectedCount returns how many of the vendor's bills were rejected.
func (s *Service) RejectedCount(ctx context.Context, tenantID, vendor string) (int, error) {
	if tenantID == "" || vendor == "" {
		return 0, fmt.Errorf("tenantID and vendor are required")
	}

	key := "rejected:" + vendor
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, tenantID, key); err == nil && data != nil {
			var n int
			if err := json.Unmarshal(data, &n); err == nil {
				return n, nil
			}
		}
	}

	n, err := s.repo.GetRejectedCount(ctx, tenantID, vendor)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(n); err == nil {
			_ = s.cache.Set(ctx, tenantID, key, data, statsTTL)
		}
	}
	return n, nil
}

// VendorStats returns amount aggregates for the vendor's bills since the
// given time.
func (s *Service) VendorStats(ctx context.Context, tenantID, vendor string, since time.Time) (*domain.VendorStats, error) {
	if tenantID == "" || vendor == "" {
		return nil, fmt.Errorf("tenantID and vendor are required")
	}

	key := "stats:" + vendor
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, tenantID, key); err == nil && data != nil {
			var stats domain.VendorStats
			if err := json.Unmarshal(data, &stats); err == nil {
				return &stats, nil
			}
		}
	}

	stats, err := s.repo.GetVendorStats(ctx, tenantID, vendor, since)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && stats != nil {
		if data, err := json.Marshal(stats); err == nil {
			_ = s.cache.Set(ctx, tenantID, key, data, statsTTL)
		}
	}
	return stats, nil
}

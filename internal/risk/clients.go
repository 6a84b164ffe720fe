// Package risk layers the vendor-history and statistical-outlier signals:
// HTTP adapters for the vendor-risk and anomaly-model collaborators, the
// rejected-bill and amount-anomaly heuristics, and the ML fusion lane.
package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/buildledger/heron/internal/domain"
)

// VendorClient calls the vendor-risk collaborator over HTTP and caches
// responses per tenant.
type VendorClient struct {
	url        string
	httpClient *http.Client
	cache      domain.Cache
	cacheTTL   time.Duration
}

// NewVendorClient creates a vendor-risk client. cache may be nil.
func NewVendorClient(cfg domain.CollaboratorConfig, cache domain.Cache) *VendorClient {
	return &VendorClient{
		url:        cfg.VendorRiskURL,
		httpClient: &http.Client{Timeout: cfg.VendorRiskTimeout},
		cache:      cache,
		cacheTTL:   5 * time.Minute,
	}
}

// VendorRisk looks up historical risk signals for a vendor.
func (c *VendorClient) VendorRisk(ctx context.Context, tenantID string, vendor string, projectID string) (*domain.VendorRiskProfile, error) {
	if c.url == "" {
		return nil, fmt.Errorf("vendor risk collaborator not configured")
	}

	cacheKey := "vendor-risk:" + vendor
	if c.cache != nil {
		if data, err := c.cache.Get(ctx, tenantID, cacheKey); err == nil && data != nil {
			var profile domain.VendorRiskProfile
			if err := json.Unmarshal(data, &profile); err == nil {
				return &profile, nil
			}
		}
	}

	body, err := json.Marshal(map[string]string{
		"vendor_name": vendor,
		"project_id":  projectID,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build vendor risk request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call vendor risk collaborator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vendor risk collaborator returned %d", resp.StatusCode)
	}

	var profile domain.VendorRiskProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decode vendor risk response: %w", err)
	}

	if c.cache != nil {
		if data, err := json.Marshal(&profile); err == nil {
			_ = c.cache.Set(ctx, tenantID, cacheKey, data, c.cacheTTL)
		}
	}
	return &profile, nil
}

// AnomalyHTTPClient calls the anomaly-model collaborator over HTTP.
type AnomalyHTTPClient struct {
	url        string
	httpClient *http.Client
}

// NewAnomalyClient creates an anomaly-model client.
func NewAnomalyClient(cfg domain.CollaboratorConfig) *AnomalyHTTPClient {
	return &AnomalyHTTPClient{
		url:        cfg.AnomalyURL,
		httpClient: &http.Client{Timeout: cfg.AnomalyTimeout},
	}
}

// Score submits (price, quantity) pairs for outlier scoring. An unconfigured
// endpoint reports the model as untrained, which is a valid state.
func (c *AnomalyHTTPClient) Score(ctx context.Context, pairs []domain.PricePair) (*domain.AnomalyResult, error) {
	if c.url == "" {
		return &domain.AnomalyResult{ModelTrained: false}, nil
	}

	body, err := json.Marshal(map[string]any{"pairs": pairs})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build anomaly request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call anomaly collaborator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anomaly collaborator returned %d", resp.StatusCode)
	}

	var result domain.AnomalyResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode anomaly response: %w", err)
	}
	result.ModelTrained = true
	return &result, nil
}

// TaxVerifierClient checks an identifier against an external registry.
type TaxVerifierClient struct {
	url        string
	httpClient *http.Client
}

// NewTaxVerifier creates a registry client, or nil when unconfigured so the
// validator skips delegation entirely.
func NewTaxVerifier(cfg domain.CollaboratorConfig) *TaxVerifierClient {
	if cfg.TaxVerifierURL == "" {
		return nil
	}
	return &TaxVerifierClient{
		url:        cfg.TaxVerifierURL,
		httpClient: &http.Client{Timeout: cfg.TaxVerifierTimeout},
	}
}

// Verify delegates verification of a format-valid identifier.
func (c *TaxVerifierClient) Verify(ctx context.Context, identifier string) (bool, error) {
	body, err := json.Marshal(map[string]string{"identifier": identifier})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("call tax verifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("tax verifier returned %d", resp.StatusCode)
	}

	var out struct {
		Valid bool `json:"valid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode verification response: %w", err)
	}
	return out.Valid, nil
}

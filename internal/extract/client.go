package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/buildledger/heron/internal/domain"
)

// Client calls the document-extraction collaborator over HTTP.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates an extraction client. An empty URL yields a client that
// always reports the collaborator as unconfigured.
func NewClient(cfg domain.CollaboratorConfig) *Client {
	return &Client{
		url: cfg.ExtractorURL,
		httpClient: &http.Client{
			Timeout: cfg.ExtractTimeout,
		},
	}
}

// AnalyzeInvoice sends the document bytes to the provider and parses the
// structured response.
func (c *Client) AnalyzeInvoice(ctx context.Context, document []byte) (*domain.ExtractedInvoice, error) {
	if c.url == "" {
		return nil, fmt.Errorf("extraction collaborator not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(document))
	if err != nil {
		return nil, fmt.Errorf("build extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call extraction collaborator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("extraction collaborator returned %d: %s", resp.StatusCode, string(body))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read extraction response: %w", err)
	}

	return FromPayload(raw)
}

// Package docstore stores uploaded bill documents and their extraction
// payloads on disk, partitioned by tenant and project.
package docstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store persists uploaded documents under
// root/bills/{tenant}/{project}/{billID}{ext} with the parsed extraction
// payload alongside as {billID}.json.
type Store struct {
	root string
}

// New creates a document store rooted at dir.
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = "./storage"
	}
	if err := os.MkdirAll(filepath.Join(dir, "bills"), 0755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &Store{root: dir}, nil
}

// SaveDocument writes the uploaded document bytes and returns the stored path.
func (s *Store) SaveDocument(tenantID, projectID, billID, filename string, data []byte) (string, error) {
	dir, err := s.billDir(tenantID, projectID)
	if err != nil {
		return "", err
	}

	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".pdf"
	}

	path := filepath.Join(dir, billID+ext)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write document: %w", err)
	}
	return path, nil
}

// SavePayload writes the extraction provider's payload for later re-analysis.
func (s *Store) SavePayload(tenantID, projectID, billID string, payload []byte) error {
	dir, err := s.billDir(tenantID, projectID)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, billID+".json"), payload, 0644)
}

// ReadPayload returns the stored extraction payload, or nil when none exists.
func (s *Store) ReadPayload(tenantID, projectID, billID string) ([]byte, error) {
	dir, err := s.billDir(tenantID, projectID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, billID+".json"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

// billDir resolves and creates the per-tenant, per-project directory. Path
// segments are sanitized so a crafted tenant or project name cannot escape
// the storage root.
func (s *Store) billDir(tenantID, projectID string) (string, error) {
	if tenantID == "" || projectID == "" {
		return "", fmt.Errorf("tenantID and projectID are required")
	}

	dir := filepath.Join(s.root, "bills", sanitize(tenantID), sanitize(projectID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create bill directory: %w", err)
	}
	return dir, nil
}

func sanitize(segment string) string {
	segment = strings.ReplaceAll(segment, string(os.PathSeparator), "_")
	segment = strings.ReplaceAll(segment, "..", "_")
	return segment
}

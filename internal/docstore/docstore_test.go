package docstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDocumentRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	path, err := store.SaveDocument("tenant-001", "project-001", "bill-001", "invoice.pdf", []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("SaveDocument failed: %v", err)
	}
	if filepath.Ext(path) != ".pdf" {
		t.Errorf("expected .pdf extension, got %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("stored document unreadable: %v", err)
	}
	if string(data) != "%PDF-1.4" {
		t.Errorf("document content mismatch: %q", data)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	store, _ := New(t.TempDir())

	payload := []byte(`{"vendor":"Acme Cement","total":22500}`)
	if err := store.SavePayload("tenant-001", "project-001", "bill-001", payload); err != nil {
		t.Fatalf("SavePayload failed: %v", err)
	}

	got, err := store.ReadPayload("tenant-001", "project-001", "bill-001")
	if err != nil {
		t.Fatalf("ReadPayload failed: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("payload mismatch: %q", got)
	}

	// Missing payloads are nil, not an error.
	got, err = store.ReadPayload("tenant-001", "project-001", "no-such-bill")
	if err != nil {
		t.Fatalf("ReadPayload failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing payload, got %q", got)
	}
}

func TestPathTraversalIsNeutralized(t *testing.T) {
	root := t.TempDir()
	store, _ := New(root)

	path, err := store.SaveDocument("../../etc", "project", "bill-001", "x.pdf", []byte("data"))
	if err != nil {
		t.Fatalf("SaveDocument failed: %v", err)
	}
	if !strings.HasPrefix(path, root) {
		t.Errorf("stored path escaped the root: %s", path)
	}
}

func TestRequiresTenantAndProject(t *testing.T) {
	store, _ := New(t.TempDir())

	if _, err := store.SaveDocument("", "project", "bill", "x.pdf", nil); err == nil {
		t.Error("expected error for empty tenantID")
	}
	if err := store.SavePayload("tenant", "", "bill", nil); err == nil {
		t.Error("expected error for empty projectID")
	}
}

package validate

import (
	"context"
	"errors"
	"testing"

	"github.com/buildledger/heron/internal/domain"
)

const validTaxID = "27AAPFU0939F1ZV"

type fakeVerifier struct {
	result bool
	err    error
	called bool
}

func (v *fakeVerifier) Verify(ctx context.Context, id string) (bool, error) {
	v.called = true
	return v.result, v.err
}

func newTaxValidator(verifier domain.TaxVerifier, failOpen bool) *TaxIDValidator {
	collab := domain.DefaultCollaborators()
	collab.TaxVerifyFailOpen = failOpen
	return NewTaxIDValidator(domain.DefaultScoring(), collab, verifier)
}

func TestValidFormat(t *testing.T) {
	inv := &domain.ExtractedInvoice{TaxID: validTaxID}
	finding := newTaxValidator(nil, true).Check(context.Background(), inv)

	if finding.Score != 0 {
		t.Errorf("expected no penalty for valid format, got %v", finding.Score)
	}
	if len(finding.Reasons) != 0 {
		t.Errorf("expected no reasons, got %v", finding.Reasons)
	}
}

func TestFourteenCharactersIsInvalid(t *testing.T) {
	inv := &domain.ExtractedInvoice{TaxID: validTaxID[:14]}
	finding := newTaxValidator(nil, true).Check(context.Background(), inv)

	if finding.Score != 20 {
		t.Errorf("expected fixed penalty 20, got %v", finding.Score)
	}
	if len(finding.Reasons) == 0 || finding.Reasons[0] != "missing or invalid tax identifier" {
		t.Errorf("expected the invalid-identifier reason, got %v", finding.Reasons)
	}
}

func TestMissingIdentifier(t *testing.T) {
	finding := newTaxValidator(nil, true).Check(context.Background(), &domain.ExtractedInvoice{})
	if finding.Score != 20 {
		t.Errorf("expected penalty for missing identifier, got %v", finding.Score)
	}
}

func TestNormalizationStripsNoise(t *testing.T) {
	inv := &domain.ExtractedInvoice{TaxID: " 27-aapfu 0939 f1zv "}
	finding := newTaxValidator(nil, true).Check(context.Background(), inv)
	if finding.Score != 0 {
		t.Errorf("normalization should recover the identifier, got score %v", finding.Score)
	}
}

func TestGrammarRejectsWrongLiteral(t *testing.T) {
	// Fourth-from-last character must be the literal 'Z'.
	if ok, _ := ValidateTaxIDFormat("27AAPFU0939F1XV"); ok {
		t.Error("identifier without the Z literal must be format-invalid")
	}
}

func TestRegionCodeOutOfRangeIsSoftNote(t *testing.T) {
	ok, notes := ValidateTaxIDFormat("99AAPFU0939F1ZV")
	if !ok {
		t.Fatal("out-of-range region should not invalidate the format")
	}
	found := false
	for _, n := range notes {
		if n == "region code outside expected range 01-37" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a region-code note, got %v", notes)
	}
}

func TestAddressFallbackScan(t *testing.T) {
	inv := &domain.ExtractedInvoice{
		Fields: map[string]any{
			"VendorAddress": "Plot 14, MIDC Area, Pune, GSTIN: 27 AAPFU 0939 F1ZV",
		},
	}
	finding := newTaxValidator(nil, true).Check(context.Background(), inv)
	if finding.Score != 0 {
		t.Errorf("expected identifier recovered from address text, got score %v, details %v", finding.Score, finding.Details)
	}
}

func TestVerifierFailOpen(t *testing.T) {
	verifier := &fakeVerifier{err: errors.New("connection refused")}
	inv := &domain.ExtractedInvoice{TaxID: validTaxID}

	finding := newTaxValidator(verifier, true).Check(context.Background(), inv)
	if !verifier.called {
		t.Fatal("verifier should have been consulted")
	}
	if finding.Score != 0 {
		t.Errorf("fail-open policy must not penalize on verifier error, got %v", finding.Score)
	}
	if finding.Details["verification"] != "unavailable, assumed valid" {
		t.Errorf("fail-open trade-off must be noted, got %v", finding.Details["verification"])
	}
}

func TestVerifierFailClosed(t *testing.T) {
	verifier := &fakeVerifier{err: errors.New("connection refused")}
	inv := &domain.ExtractedInvoice{TaxID: validTaxID}

	finding := newTaxValidator(verifier, false).Check(context.Background(), inv)
	if finding.Score != 20 {
		t.Errorf("fail-closed policy must penalize on verifier error, got %v", finding.Score)
	}
}

func TestVerifierRejection(t *testing.T) {
	verifier := &fakeVerifier{result: false}
	inv := &domain.ExtractedInvoice{TaxID: validTaxID}

	finding := newTaxValidator(verifier, true).Check(context.Background(), inv)
	if finding.Score != 20 {
		t.Errorf("registry rejection must penalize, got %v", finding.Score)
	}
}

func TestVerifierNotConsultedForInvalidFormat(t *testing.T) {
	verifier := &fakeVerifier{result: true}
	inv := &domain.ExtractedInvoice{TaxID: "SHORT"}

	newTaxValidator(verifier, true).Check(context.Background(), inv)
	if verifier.called {
		t.Error("format-invalid identifiers must not reach the verifier")
	}
}

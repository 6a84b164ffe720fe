package validate

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/buildledger/heron/internal/domain"
	"github.com/buildledger/heron/internal/extract"
)

// GSTIN-style structural grammar: 2-digit issuing-region code, a 10-character
// PAN-like core (5 letters, 4 digits, 1 letter), an entity-code character, the
// literal 'Z', and a trailing checksum character. Format-only: the checksum
// value itself is not verified.
var (
	taxIDGrammar = regexp.MustCompile(`^(\d{2})([A-Z]{5}\d{4}[A-Z])([0-9A-Z])Z([0-9A-Z])$`)
	taxIDScan    = regexp.MustCompile(`\d{2}[A-Z]{5}\d{4}[A-Z][0-9A-Z]Z[0-9A-Z]`)
	nonAlphanum  = regexp.MustCompile(`[^A-Z0-9]`)
)

const taxIDLength = 15

// TaxIDValidator validates a vendor tax identifier's structural format and
// optionally consults an external verification collaborator.
type TaxIDValidator struct {
	cfg      domain.ScoringConfig
	verifier domain.TaxVerifier
	failOpen bool
	timeout  func(context.Context) (context.Context, context.CancelFunc)
}

// NewTaxIDValidator creates a tax-identifier validator. verifier may be nil.
func NewTaxIDValidator(cfg domain.ScoringConfig, collab domain.CollaboratorConfig, verifier domain.TaxVerifier) *TaxIDValidator {
	return &TaxIDValidator{
		cfg:      cfg,
		verifier: verifier,
		failOpen: collab.TaxVerifyFailOpen,
		timeout: func(ctx context.Context) (context.Context, context.CancelFunc) {
			return context.WithTimeout(ctx, collab.TaxVerifierTimeout)
		},
	}
}

// Check locates a tax identifier candidate, validates its structure and, when
// a verifier is configured, delegates verification. Verifier failure follows
// the configured fail-open policy: the format-valid identifier is treated as
// verified and the trade-off is noted in the finding.
func (v *TaxIDValidator) Check(ctx context.Context, inv *domain.ExtractedInvoice) domain.ValidationFinding {
	finding := domain.ValidationFinding{Signal: domain.SignalTaxID}

	candidate := v.locate(inv)
	normalized := NormalizeTaxID(candidate)

	details := map[string]any{"tax_id": normalized}
	finding.Details = details

	valid, notes := ValidateTaxIDFormat(normalized)
	details["format_valid"] = valid
	if len(notes) > 0 {
		details["notes"] = notes
	}

	if !valid {
		finding.Score = v.cfg.InvalidTaxIDScore
		finding.Reasons = append(finding.Reasons, "missing or invalid tax identifier")
		return finding
	}

	if v.verifier != nil {
		vctx, cancel := v.timeout(ctx)
		defer cancel()

		verified, err := v.verifier.Verify(vctx, normalized)
		switch {
		case err != nil && v.failOpen:
			slog.Warn("tax verifier unavailable, assuming valid", "error", err)
			details["verification"] = "unavailable, assumed valid"
		case err != nil:
			finding.Score = v.cfg.InvalidTaxIDScore
			finding.Reasons = append(finding.Reasons, "tax identifier could not be verified")
			details["verification"] = "unavailable, treated as invalid"
		case !verified:
			finding.Score = v.cfg.InvalidTaxIDScore
			finding.Reasons = append(finding.Reasons, "missing or invalid tax identifier")
			details["verification"] = "rejected by registry"
		default:
			details["verification"] = "verified"
		}
	}

	return finding
}

// locate scans the priority-ordered alias list, then falls back to pattern
// scanning free-text address fields.
func (v *TaxIDValidator) locate(inv *domain.ExtractedInvoice) string {
	if inv.TaxID != "" {
		return inv.TaxID
	}
	if inv.Fields != nil {
		if s := extract.ProbeString(inv.Fields, "tax_id"); s != "" {
			return s
		}
		if addr := extract.ProbeString(inv.Fields, "address"); addr != "" {
			compact := strings.ReplaceAll(strings.ToUpper(addr), " ", "")
			if m := taxIDScan.FindString(compact); m != "" {
				return m
			}
		}
	}
	return ""
}

// NormalizeTaxID uppercases the candidate and strips every character outside
// the identifier alphabet.
func NormalizeTaxID(s string) string {
	return nonAlphanum.ReplaceAllString(strings.ToUpper(strings.TrimSpace(s)), "")
}

// ValidateTaxIDFormat checks the fixed length and segment grammar. The
// returned notes describe soft findings (e.g. a region code outside the known
// range) that do not invalidate the format.
func ValidateTaxIDFormat(id string) (bool, []string) {
	if len(id) != taxIDLength {
		return false, []string{"tax identifier must be 15 characters"}
	}
	m := taxIDGrammar.FindStringSubmatch(id)
	if m == nil {
		return false, []string{"tax identifier does not match region+core+entity+Z+checksum grammar"}
	}

	var notes []string
	region, _ := strconv.Atoi(m[1])
	if region < 1 || region > 37 {
		notes = append(notes, "region code outside expected range 01-37")
	}
	notes = append(notes, "checksum not validated")
	return true, notes
}

package flow

import (
	"context"
	"strings"

	"github.com/araddon/dateparse"

	"github.com/Adam-Behun/optimalbot-portal-sub000/core"
	"github.com/Adam-Behun/optimalbot-portal-sub000/o11y"
	"github.com/Adam-Behun/optimalbot-portal-sub000/transport"
)

// MaxVerificationAttempts is the number of phone+DOB match attempts allowed
// before the dial-in identity-verification subroutine cold-transfers to
// staff (spec.md §4.5).
const MaxVerificationAttempts = 2

// Patient is the subset of patient-record fields the verification
// subroutine needs; store/ supplies the concrete lookup.
type Patient struct {
	ID     string
	DOB    string // YYYY-MM-DD
	Fields map[string]any
}

// PatientLookup resolves a normalized phone number to a patient record
// scoped to an organization.
type PatientLookup interface {
	LookupByPhone(ctx context.Context, organizationID, phone string) (Patient, bool, error)
}

// spokenDigits maps spoken number words to their digit, for
// NormalizeSpokenDigits and phone-number normalization alike.
var spokenDigits = map[string]string{
	"zero": "0", "oh": "0", "one": "1", "two": "2", "three": "3", "four": "4",
	"five": "5", "six": "6", "seven": "7", "eight": "8", "nine": "9",
}

// NormalizeSpokenDigits converts a caller's spoken digit words ("one two
// three") into a plain digit string ("123"), leaving any token it doesn't
// recognize as a digit word untouched, so a reference number like "A one
// two three" normalizes to "a123" rather than losing the letter. This
// normalizes reference/confirmation numbers read back by a caller
// (SPEC_FULL.md's supplemented spoken-number normalization).
func NormalizeSpokenDigits(spoken string) string {
	if spoken == "" {
		return spoken
	}
	var b strings.Builder
	for _, token := range strings.Fields(strings.ToLower(spoken)) {
		clean := strings.Trim(token, ".,!?;:-")
		if digit, ok := spokenDigits[clean]; ok {
			b.WriteString(digit)
			continue
		}
		b.WriteString(token)
	}
	return b.String()
}

// NormalizePhone expands spoken digit words and then strips everything but
// digits, for comparing a caller's spoken phone number against a stored one.
func NormalizePhone(spoken string) string {
	expanded := NormalizeSpokenDigits(spoken)
	var b strings.Builder
	for _, r := range expanded {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizeSpokenDate parses a caller's free-form spoken date of birth
// ("March 3, 1985") into YYYY-MM-DD, using
// araddon/dateparse's permissive parser rather than a hand-rolled one.
func normalizeSpokenDate(spoken string) (string, error) {
	t, err := dateparse.ParseAny(spoken)
	if err != nil {
		return "", err
	}
	return t.Format("2006-01-02"), nil
}

// VerificationResult is the outcome of one RunVerification call.
type VerificationResult struct {
	// Verified is true once phone+DOB matched a patient record.
	Verified bool
	// Transferred is true if verification exhausted its attempts and cold
	// transferred to staff instead.
	Transferred bool
	Patient     Patient
}

// RunVerification implements spec.md §4.5's dial-in identity-verification
// subroutine for one DOB comparison attempt: look up the patient by
// normalized phone, parse the spoken DOB, and compare. On the
// MaxVerificationAttempts-th consecutive failure it cold-transfers to staff
// instead of allowing a third attempt.
func RunVerification(ctx context.Context, lookup PatientLookup, tr transport.Transport, organizationID, staffEndpoint string, state *State, spokenPhone, spokenDOB string) (VerificationResult, error) {
	phone := NormalizePhone(spokenPhone)
	patient, found, err := lookup.LookupByPhone(ctx, organizationID, phone)
	if err != nil {
		return VerificationResult{}, core.NewError("flow.verification", core.ErrInvalidInput, "patient lookup failed", err)
	}

	attempts := state.Increment("lookup_attempts", 1)
	logger := o11y.FromContext(ctx)

	if !found {
		logger.Info(ctx, "verification: no patient found for phone", "attempt", attempts)
		return failOrTransfer(ctx, tr, staffEndpoint, state, attempts)
	}

	dob, err := normalizeSpokenDate(spokenDOB)
	if err != nil || dob != patient.DOB {
		logger.Info(ctx, "verification: DOB mismatch", "attempt", attempts)
		return failOrTransfer(ctx, tr, staffEndpoint, state, attempts)
	}

	state.Set("identity_verified", true)
	for k, v := range patient.Fields {
		state.Set(k, v)
	}
	state.Set("patient_id", patient.ID)
	logger.Info(ctx, "verification succeeded", "patient_id", patient.ID)
	return VerificationResult{Verified: true, Patient: patient}, nil
}

func failOrTransfer(ctx context.Context, tr transport.Transport, staffEndpoint string, state *State, attempts int) (VerificationResult, error) {
	if attempts < MaxVerificationAttempts {
		return VerificationResult{}, nil
	}
	if err := tr.SIPCallTransfer(ctx, staffEndpoint); err != nil {
		return VerificationResult{}, core.NewError("flow.verification", core.ErrTransferFailed, "staff transfer after failed verification failed", err)
	}
	state.Set("routed_to", staffEndpoint)
	return VerificationResult{Transferred: true}, nil
}

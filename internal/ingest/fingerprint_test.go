package ingest

import (
	"testing"

	json "github.com/goccy/go-json"
)

// TestFingerprint_Deterministic tests that the same identity tuple always
// produces the same digest
func TestFingerprint_Deterministic(t *testing.T) {
	rec := map[string]any{
		"id":         json.Number("100"),
		"user_id":    json.Number("5"),
		"beatmap_id": json.Number("9"),
		"created_at": "2024-01-01T00:00:00Z",
		"accuracy":   json.Number("0.98"),
	}

	first := Fingerprint(rec)
	second := Fingerprint(rec)

	if first != second {
		t.Errorf("Fingerprint not deterministic: %s != %s", first, second)
	}
	if len(first) != 32 {
		t.Errorf("Expected 32-char md5 hex digest, got %d chars", len(first))
	}
}

// TestFingerprint_IgnoresNonIdentityFields tests that fields outside the
// identity tuple do not affect the digest
func TestFingerprint_IgnoresNonIdentityFields(t *testing.T) {
	base := map[string]any{
		"id":         json.Number("100"),
		"user_id":    json.Number("5"),
		"beatmap_id": json.Number("9"),
		"created_at": "2024-01-01T00:00:00Z",
	}
	extended := map[string]any{
		"id":         json.Number("100"),
		"user_id":    json.Number("5"),
		"beatmap_id": json.Number("9"),
		"created_at": "2024-01-01T00:00:00Z",
		"accuracy":   json.Number("0.5"),
		"rank":       "S",
	}

	if Fingerprint(base) != Fingerprint(extended) {
		t.Error("Fingerprint should only depend on the identity tuple")
	}
}

// TestFingerprint_MissingFieldsDegradeToEmpty tests that absent fields
// contribute empty strings rather than erroring
func TestFingerprint_MissingFieldsDegradeToEmpty(t *testing.T) {
	partial := map[string]any{"id": json.Number("100")}
	empty := map[string]any{}

	fpPartial := Fingerprint(partial)
	fpEmpty := Fingerprint(empty)

	if fpPartial == "" || fpEmpty == "" {
		t.Error("Fingerprint should never be empty")
	}
	if fpPartial == fpEmpty {
		t.Error("Records with different ids should fingerprint differently")
	}
}

// TestFingerprint_NumericAndTextualFormsMatch tests that a numeric id from
// the API and its textual form from a re-read CSV row hash identically
func TestFingerprint_NumericAndTextualFormsMatch(t *testing.T) {
	fromAPI := map[string]any{
		"id":         json.Number("1234567890123"),
		"user_id":    json.Number("14852499"),
		"beatmap_id": json.Number("4091659"),
		"created_at": "2024-06-01T12:34:56Z",
	}
	fromFile := map[string]string{
		"id":         "1234567890123",
		"user_id":    "14852499",
		"beatmap_id": "4091659",
		"created_at": "2024-06-01T12:34:56Z",
	}

	if Fingerprint(fromAPI) != FingerprintRow(fromFile) {
		t.Error("API and file representations of the same record should fingerprint identically")
	}
}

// TestStringify_Scalars tests string coercion of the scalar shapes that
// appear in decoded records
func TestStringify_Scalars(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "hello", "hello"},
		{"number", json.Number("42"), "42"},
		{"big number", json.Number("1234567890123456"), "1234567890123456"},
		{"decimal number", json.Number("0.9871"), "0.9871"},
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"float", 1.5, "1.5"},
		{"int", 7, "7"},
	}

	for _, tc := range cases {
		if got := Stringify(tc.in); got != tc.want {
			t.Errorf("%s: Stringify(%v) = %q, want %q", tc.name, tc.in, got, tc.want)
		}
	}
}

// TestStringify_ComplexFallsBackToJSON tests that unrecognized shapes are
// preserved as their JSON encoding rather than dropped
func TestStringify_ComplexFallsBackToJSON(t *testing.T) {
	got := Stringify([]any{"a", "b"})
	if got != `["a","b"]` {
		t.Errorf("Expected JSON encoding for list value, got %q", got)
	}
}

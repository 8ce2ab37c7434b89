package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/vidscribe/vidscribe/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"UserID", id.NewUserID, "user_"},
		{"TransactionID", id.NewTransactionID, "txn_"},
		{"JobID", id.NewJobID, "job_"},
		{"GrantID", id.NewGrantID, "grant_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestNew(t *testing.T) {
	i := id.New(id.PrefixJob)
	if i.IsNil() {
		t.Fatal("New returned a nil ID")
	}
	if i.Prefix() != id.PrefixJob {
		t.Errorf("Prefix: got %q, want %q", i.Prefix(), id.PrefixJob)
	}
}

func TestParseRoundTrip(t *testing.T) {
	orig := id.NewTransactionID()

	parsed, err := id.ParseTransactionID(orig.String())
	if err != nil {
		t.Fatalf("ParseTransactionID: %v", err)
	}
	if parsed.String() != orig.String() {
		t.Errorf("round trip: got %q, want %q", parsed.String(), orig.String())
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"garbage", "not a typeid"},
		{"bad suffix", "job_!!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := id.Parse(tt.input); err == nil {
				t.Errorf("Parse(%q): expected error", tt.input)
			}
		})
	}
}

func TestParseWithPrefixMismatch(t *testing.T) {
	jobID := id.NewJobID()

	if _, err := id.ParseUserID(jobID.String()); err == nil {
		t.Error("expected prefix mismatch error parsing a job ID as a user ID")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID

	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("nil ID String: got %q, want empty", i.String())
	}

	v, err := i.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if v != nil {
		t.Errorf("nil ID Value: got %v, want nil", v)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	orig := id.NewJobID()

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded id.ID
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.String() != orig.String() {
		t.Errorf("JSON round trip: got %q, want %q", decoded.String(), orig.String())
	}
}

func TestScan(t *testing.T) {
	orig := id.NewUserID()

	var scanned id.ID
	if err := scanned.Scan(orig.String()); err != nil {
		t.Fatalf("Scan string: %v", err)
	}
	if scanned.String() != orig.String() {
		t.Errorf("Scan: got %q, want %q", scanned.String(), orig.String())
	}

	var fromNil id.ID
	if err := fromNil.Scan(nil); err != nil {
		t.Fatalf("Scan nil: %v", err)
	}
	if !fromNil.IsNil() {
		t.Error("Scan(nil) should produce the nil ID")
	}

	var bad id.ID
	if err := bad.Scan(42); err == nil {
		t.Error("Scan(int) should fail")
	}
}

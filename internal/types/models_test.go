// internal/types/models_test.go
package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestFlexStringDecoding(t *testing.T) {
	cases := []struct {
		in   string
		want FlexString
	}{
		{`{"id":"W1"}`, "W1"},
		{`{"id":42}`, "42"},
		{`{"id":-7}`, "-7"},
		{`{"id":true}`, "true"},
		{`{"id":null}`, ""},
	}
	for _, c := range cases {
		var v struct {
			ID FlexString `json:"id"`
		}
		if err := json.Unmarshal([]byte(c.in), &v); err != nil {
			t.Fatalf("%s: unexpected error: %v", c.in, err)
		}
		if v.ID != c.want {
			t.Errorf("%s: expected %q, got %q", c.in, c.want, v.ID)
		}
	}
}

func TestFlexStringRejectsObjects(t *testing.T) {
	var v struct {
		ID FlexString `json:"id"`
	}
	if err := json.Unmarshal([]byte(`{"id":{"a":1}}`), &v); err == nil {
		t.Fatal("expected error for object value")
	}
}

func TestSnapshotOmitsTokens(t *testing.T) {
	snap := SessionSnapshot{
		Owners: []OwnerEntry{{UserID: 1, OwnerSession: OwnerSession{ChatID: 10, BackendID: "U1", Token: "secret-owner"}}},
		Staff:  []StaffSession{{ChatID: 20, StaffID: "S1", WebsiteID: "W1", Token: "secret-staff"}},
		At:     time.Now(),
	}
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "secret") {
		t.Errorf("snapshot leaked a token: %s", data)
	}
	if !strings.Contains(string(data), `"backend_id":"U1"`) {
		t.Errorf("expected embedded owner fields, got %s", data)
	}
}

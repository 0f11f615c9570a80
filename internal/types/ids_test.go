// internal/types/ids_test.go
package types

import (
	"testing"
)

func TestNewRunID(t *testing.T) {
	id := NewRunID()
	if id == "" {
		t.Error("expected non-empty RunID")
	}
	if len(string(id)) != 36 {
		t.Errorf("expected UUID format, got %s", id)
	}
}

func TestNewTicketUnique(t *testing.T) {
	if NewTicket() == NewTicket() {
		t.Error("expected distinct tickets")
	}
}

func TestSessionKeyFormat(t *testing.T) {
	key := NewSessionKey("telegram", "123", "456")
	expected := SessionKey("telegram:123:456")
	if key != expected {
		t.Errorf("expected %s, got %s", expected, key)
	}
}

func TestChatIDString(t *testing.T) {
	if got := ChatID(-100123).String(); got != "-100123" {
		t.Errorf("expected -100123, got %s", got)
	}
	if got := UserID(42).String(); got != "42" {
		t.Errorf("expected 42, got %s", got)
	}
}

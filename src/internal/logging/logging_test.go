package logging

import "testing"

func TestNewReturnsLogger(t *testing.T) {
	if New(false) == nil {
		t.Fatalf("New(false) returned nil")
	}
	log := New(true)
	if log == nil {
		t.Fatalf("New(true) returned nil")
	}
	log.Debug("probe")
	_ = log.Sync()
}

package session

import (
	"testing"
	"time"
)

func TestSerialize_SetsVersionAndRoundTrips(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	ss := &SerializableSession{
		ID:        "ABCDEFGHIJKLMNOPQRST",
		Host:      "www.example.com",
		CreatedAt: now.Add(-time.Minute),
		ExpiresAt: now.Add(10 * time.Minute),
		Params:    map[string]string{"bgcolor": "00FF00"},
		Version:   999, // overwritten
	}

	data, err := Serialize(ss)
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}
	if ss.Version != CurrentSerializationVersion {
		t.Fatalf("Serialize() did not set Version: got %d want %d", ss.Version, CurrentSerializationVersion)
	}

	got, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize() error: %v", err)
	}
	if got.ID != ss.ID || got.Host != ss.Host {
		t.Errorf("round-trip mismatch: got %+v want %+v", got, ss)
	}
	if !got.CreatedAt.Equal(ss.CreatedAt) || !got.ExpiresAt.Equal(ss.ExpiresAt) {
		t.Errorf("times mismatch: got %v/%v want %v/%v", got.CreatedAt, got.ExpiresAt, ss.CreatedAt, ss.ExpiresAt)
	}
	if got.Params["bgcolor"] != "00FF00" {
		t.Errorf("Params mismatch: got %v", got.Params)
	}
}

func TestDeserialize_InvalidJSONErrors(t *testing.T) {
	if _, err := Deserialize([]byte("{")); err == nil {
		t.Fatal("Deserialize() expected error for invalid JSON")
	}
}

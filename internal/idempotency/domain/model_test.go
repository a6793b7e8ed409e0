package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveKeyPrefersProvided(t *testing.T) {
	assert.Equal(t, "evt_123", DeriveKey("evt_123", []byte(`{"a":1}`)))
	assert.Equal(t, "evt_123", DeriveKey("  evt_123  ", []byte(`{"a":1}`)))
}

func TestDeriveKeyFallsBackToBodyDigest(t *testing.T) {
	body := []byte(`{"event_id":"evt_1"}`)

	first := DeriveKey("", body)
	second := DeriveKey("   ", body)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)

	other := DeriveKey("", []byte(`{"event_id":"evt_2"}`))
	assert.NotEqual(t, first, other)
}

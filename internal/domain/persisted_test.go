package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestPersistedRoundTrip(t *testing.T) {
	expiry := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	s := Session{
		IsAuthenticated:    true,
		UserID:             "u1",
		Username:           "jane",
		Email:              "jane@example.com",
		IsVip:              true,
		EmailVerified:      true,
		VipPlan:            PlanMonthly,
		VipPlanDisplayName: "Monthly VIP",
		VipDurationDays:    30,
		ExpiresAt:          &expiry,
		AccessToken:        "access",
		RefreshToken:       "refresh",
		TokenExpiresAt:     expiry.Add(-time.Hour),
	}

	blob, err := EncodePersisted(s)
	require.NoError(t, err)
	restored := DecodePersisted(blob)
	assert.Equal(t, s, restored)
}

func TestDecodePersistedEmptyBlob(t *testing.T) {
	assert.Equal(t, Anonymous(), DecodePersisted(nil))
	assert.Equal(t, Anonymous(), DecodePersisted([]byte{}))
}

func TestDecodePersistedCorruptBlob(t *testing.T) {
	// Bad local state never blocks startup; it decodes to anonymous.
	assert.Equal(t, Anonymous(), DecodePersisted([]byte("{truncated")))
	assert.Equal(t, Anonymous(), DecodePersisted([]byte("[]")))
}

func TestPersistedIgnoresUnknownFields(t *testing.T) {
	blob := []byte(`{"is_authenticated":true,"user_id":"u1","access_token":"a","refresh_token":"r","legacy_field":42}`)
	s := DecodePersisted(blob)
	assert.True(t, s.IsAuthenticated)
	assert.Equal(t, "u1", s.UserID)
	assert.True(t, s.HasTokens())
}

package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	require.NoError(t, base.BeforeCreate(nil))
	parsed, err := uuid.Parse(base.ID)
	require.NoError(t, err)
	require.Equal(t, uuid.Version(7), parsed.Version())

	first, err := NewID()
	require.NoError(t, err)
	second, err := NewID()
	require.NoError(t, err)
	require.Less(t, first, second)

	preset := BaseModel{ID: "fixed"}
	require.NoError(t, preset.BeforeCreate(nil))
	require.Equal(t, "fixed", preset.ID)
}

func TestEmbeddedModelsUseBaseBeforeCreate(t *testing.T) {
	cases := []struct {
		name  string
		model func() *BaseModel
	}{
		{"user", func() *BaseModel { return &(&User{}).BaseModel }},
		{"device", func() *BaseModel { return &(&Device{}).BaseModel }},
		{"license", func() *BaseModel { return &(&License{}).BaseModel }},
		{"license_history", func() *BaseModel { return &(&LicenseHistory{}).BaseModel }},
		{"notification", func() *BaseModel { return &(&Notification{}).BaseModel }},
		{"mfa_secret", func() *BaseModel { return &(&MFASecret{}).BaseModel }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model := tc.model()
			require.NoError(t, model.BeforeCreate(nil))
			require.NotEmpty(t, model.ID)
		})
	}
}

func TestAuditLogBeforeCreateGeneratesID(t *testing.T) {
	before := time.Now().UTC()
	entry := &AuditLog{}
	require.NoError(t, entry.BeforeCreate(nil))
	require.NotEmpty(t, entry.ID)
	require.False(t, entry.Timestamp.Before(before))

	at := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	kept := &AuditLog{ID: "fixed", Timestamp: at}
	require.NoError(t, kept.BeforeCreate(nil))
	require.Equal(t, "fixed", kept.ID)
	require.Equal(t, at, kept.Timestamp)
}

func TestUrgencyForDays(t *testing.T) {
	cases := map[int]Urgency{
		1:  UrgencyHigh,
		7:  UrgencyHigh,
		8:  UrgencyMedium,
		14: UrgencyMedium,
		15: UrgencyLow,
		30: UrgencyLow,
	}
	for days, want := range cases {
		require.Equal(t, want, UrgencyForDays(days), "days=%d", days)
	}

	require.True(t, UrgencyMedium.Valid())
	require.False(t, Urgency("critical").Valid())
}

func TestLicenseDaysUntilFloors(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	lic := License{ExpirationDate: now.Add(7*24*time.Hour + 23*time.Hour)}
	require.Equal(t, 7, lic.DaysUntil(now))

	lic.ExpirationDate = now.Add(12 * time.Hour)
	require.Equal(t, 0, lic.DaysUntil(now))

	lic.ExpirationDate = now.Add(-time.Hour)
	require.Equal(t, -1, lic.DaysUntil(now))
}

func TestLicenseBeforeSaveNormalisesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	lic := &License{ExpirationDate: time.Date(2025, 3, 1, 5, 0, 0, 0, loc)}

	require.NoError(t, lic.BeforeSave(nil))
	require.Equal(t, time.UTC, lic.ExpirationDate.Location())
	require.Equal(t, 0, lic.ExpirationDate.Hour())
}

func TestLicenseHistoryTableName(t *testing.T) {
	require.Equal(t, "license_history", LicenseHistory{}.TableName())
}

package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/licensewatch/internal/handlers/testutil"
)

type auditPayload struct {
	ID         string          `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Action     string          `json:"action"`
	Changes    json.RawMessage `json:"changes"`
	UserID     *string         `json:"user_id"`
	IPAddress  string          `json:"ip_address"`
}

func dateIn(days int) string {
	return time.Now().UTC().AddDate(0, 0, days).Format("2006-01-02")
}

func TestLicenseLifecycle(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := env.CreateUser("owner@example.com", "password123", false)
	token := env.TokenFor(owner)
	device := createDevice(t, env, token, "SVC-001")

	license := createLicense(t, env, token, device.ID, "Windows Server", dateIn(90))
	require.Equal(t, device.ID, license.DeviceID)

	w := env.Request(http.MethodPost, "/api/licenses", map[string]string{
		"device_id": device.ID, "license_type": "Office", "expiration_date": "next tuesday",
	}, token)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.Request(http.MethodPost, "/api/licenses", map[string]string{
		"device_id": "missing", "license_type": "Office", "expiration_date": dateIn(5),
	}, token)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.Request(http.MethodPatch, "/api/licenses/"+license.ID, map[string]string{"license_type": "Windows Server 2022"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated licensePayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &updated)
	require.Equal(t, "Windows Server 2022", updated.LicenseType)
	require.Equal(t, license.ExpirationDate, updated.ExpirationDate)

	w = env.Request(http.MethodGet, "/api/licenses/"+license.ID+"/history", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var history []struct {
		Action string `json:"action"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &history)
	require.Len(t, history, 2)

	w = env.Request(http.MethodGet, "/api/licenses/"+license.ID+"/audit", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var entries []auditPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &entries)
	require.Len(t, entries, 2)
	actions := []string{entries[0].Action, entries[1].Action}
	require.ElementsMatch(t, []string{"create", "update"}, actions)
	for _, entry := range entries {
		require.Equal(t, owner.ID, *entry.UserID)
	}

	w = env.Request(http.MethodDelete, "/api/licenses/"+license.ID, nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, http.StatusNotFound, env.Request(http.MethodGet, "/api/licenses/"+license.ID, nil, token).Code)
}

func TestLicenseVisibility(t *testing.T) {
	env := testutil.NewEnv(t)
	alice := env.CreateUser("alice@example.com", "password123", false)
	bob := env.CreateUser("bob@example.com", "password123", false)
	aliceToken, bobToken := env.TokenFor(alice), env.TokenFor(bob)

	aliceDevice := createDevice(t, env, aliceToken, "SVC-A")
	bobDevice := createDevice(t, env, bobToken, "SVC-B")
	license := createLicense(t, env, aliceToken, aliceDevice.ID, "pro", dateIn(30))
	createLicense(t, env, bobToken, bobDevice.ID, "basic", dateIn(30))

	w := env.Request(http.MethodPost, "/api/licenses", map[string]string{
		"device_id": aliceDevice.ID, "license_type": "pro", "expiration_date": dateIn(1),
	}, bobToken)
	require.Equal(t, http.StatusNotFound, w.Code)

	require.Equal(t, http.StatusNotFound, env.Request(http.MethodGet, "/api/licenses/"+license.ID, nil, bobToken).Code)
	require.Equal(t, http.StatusNotFound, env.Request(http.MethodGet, "/api/licenses/"+license.ID+"/audit", nil, bobToken).Code)
	require.Equal(t, http.StatusNotFound, env.Request(http.MethodGet, "/api/licenses/"+license.ID+"/history", nil, bobToken).Code)

	w = env.Request(http.MethodGet, "/api/licenses", nil, bobToken)
	require.Equal(t, int64(1), testutil.DecodeResponse(t, w).Meta.Count)

	w = env.Request(http.MethodGet, "/api/licenses?license_type=PR", nil, env.SuperuserToken())
	require.Equal(t, http.StatusOK, w.Code)
	var found []licensePayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &found)
	require.Len(t, found, 1)
	require.Equal(t, license.ID, found[0].ID)
}

func TestExpiringLicensesAndStats(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := env.CreateUser("owner@example.com", "password123", false)
	token := env.TokenFor(owner)
	device := createDevice(t, env, token, "SVC-001")

	soon := createLicense(t, env, token, device.ID, "soon", dateIn(5))
	createLicense(t, env, token, device.ID, "later", dateIn(60))
	createLicense(t, env, token, device.ID, "expired", dateIn(-3))

	w := env.Request(http.MethodGet, "/api/licenses/expiring", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var expiring []struct {
		License         licensePayload `json:"license"`
		DaysUntilExpiry int            `json:"days_until_expiry"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &expiring)
	require.Len(t, expiring, 1)
	require.Equal(t, soon.ID, expiring[0].License.ID)
	require.InDelta(t, 5, expiring[0].DaysUntilExpiry, 1)

	w = env.Request(http.MethodGet, "/api/licenses/expiring?days=90", nil, token)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &expiring)
	require.Len(t, expiring, 2)

	w = env.Request(http.MethodGet, "/api/licenses/expiring?days=-1", nil, token)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, testutil.DecodeResponse(t, w).Error.Message, "0 = default")

	w = env.Request(http.MethodGet, "/api/licenses/expiring?days=0", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &expiring)
	require.Len(t, expiring, 1)

	require.Equal(t, http.StatusBadRequest, env.Request(http.MethodGet, "/api/licenses/expiring?days=400", nil, token).Code)

	w = env.Request(http.MethodGet, "/api/licenses/stats", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		Total        int64 `json:"total"`
		Active       int64 `json:"active"`
		Expired      int64 `json:"expired"`
		ExpiringSoon int64 `json:"expiring_soon"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &stats)
	require.Equal(t, int64(3), stats.Total)
	require.Equal(t, int64(2), stats.Active)
	require.Equal(t, int64(1), stats.Expired)
	require.Equal(t, int64(1), stats.ExpiringSoon)
}

func TestLicenseExport(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.SuperuserToken()
	device := createDevice(t, env, token, "SVC-001")
	license := createLicense(t, env, token, device.ID, "pro", dateIn(30))

	w := env.Request(http.MethodGet, "/api/licenses/"+license.ID+"/export?format=pdf", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, `attachment; filename="license_`+license.ID+`.pdf"`, w.Header().Get("Content-Disposition"))
	require.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))
}

package handlers_test

import (
	"bytes"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/licensewatch/internal/handlers/testutil"
	"github.com/charlesng35/licensewatch/internal/models"
)

func TestDeviceLifecycle(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := env.CreateUser("owner@example.com", "password123", false)
	token := env.TokenFor(owner)

	device := createDevice(t, env, token, "SVC-001")
	require.Equal(t, owner.ID, *device.AddedByID)

	w := env.Request(http.MethodPost, "/api/devices", map[string]string{"service_tag": "SVC-001", "device_type": "laptop"}, token)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.Request(http.MethodPost, "/api/devices", map[string]string{"service_tag": "bad tag!", "device_type": "laptop"}, token)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, testutil.DecodeResponse(t, w).Error.Message, "service tag may only contain")

	w = env.Request(http.MethodPatch, "/api/devices/"+device.ID, map[string]string{"device_type": "desktop"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated devicePayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &updated)
	require.Equal(t, "desktop", updated.DeviceType)
	require.Equal(t, "SVC-001", updated.ServiceTag)

	w = env.Request(http.MethodGet, "/api/devices/"+device.ID, nil, token)
	require.Equal(t, http.StatusOK, w.Code)

	createLicense(t, env, token, device.ID, "Windows", time.Now().AddDate(0, 0, 10).Format("2006-01-02"))
	w = env.Request(http.MethodGet, "/api/devices/"+device.ID+"/licenses", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var licenses []licensePayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &licenses)
	require.Len(t, licenses, 1)

	w = env.Request(http.MethodDelete, "/api/devices/"+device.ID, nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var count int64
	require.NoError(t, env.DB.Model(&models.License{}).Count(&count).Error)
	require.Zero(t, count)

	w = env.Request(http.MethodGet, "/api/devices/"+device.ID, nil, token)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeviceVisibility(t *testing.T) {
	env := testutil.NewEnv(t)
	alice := env.CreateUser("alice@example.com", "password123", false)
	bob := env.CreateUser("bob@example.com", "password123", false)
	aliceToken, bobToken := env.TokenFor(alice), env.TokenFor(bob)

	device := createDevice(t, env, aliceToken, "SVC-A1")
	createDevice(t, env, aliceToken, "SVC-A2")
	createDevice(t, env, bobToken, "SVC-B1")

	w := env.Request(http.MethodGet, "/api/devices", nil, aliceToken)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, int64(2), testutil.DecodeResponse(t, w).Meta.Count)

	w = env.Request(http.MethodGet, "/api/devices", nil, env.SuperuserToken())
	require.Equal(t, int64(3), testutil.DecodeResponse(t, w).Meta.Count)

	require.Equal(t, http.StatusNotFound, env.Request(http.MethodGet, "/api/devices/"+device.ID, nil, bobToken).Code)
	require.Equal(t, http.StatusNotFound, env.Request(http.MethodDelete, "/api/devices/"+device.ID, nil, bobToken).Code)
	require.Equal(t, http.StatusNotFound, env.Request(http.MethodGet, "/api/devices/"+device.ID+"/licenses", nil, bobToken).Code)

	w = env.Request(http.MethodGet, "/api/devices?service_tag=a2", nil, aliceToken)
	require.Equal(t, http.StatusOK, w.Code)
	var found []devicePayload
	resp := testutil.DecodeResponse(t, w)
	testutil.DecodeInto(t, resp.Data, &found)
	require.Len(t, found, 1)
	require.Equal(t, "SVC-A2", found[0].ServiceTag)

	w = env.Request(http.MethodGet, "/api/devices?service_tag=b1", nil, aliceToken)
	require.Zero(t, testutil.DecodeResponse(t, w).Meta.Count)
}

func TestDeviceStats(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := env.CreateUser("owner@example.com", "password123", false)
	token := env.TokenFor(owner)

	active := createDevice(t, env, token, "SVC-ACTIVE")
	createDevice(t, env, token, "SVC-BARE")
	createLicense(t, env, token, active.ID, "pro", time.Now().AddDate(1, 0, 0).Format(time.RFC3339))

	w := env.Request(http.MethodGet, "/api/devices/stats", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var stats struct {
		Total             int64 `json:"total"`
		WithActiveLicense int64 `json:"with_active_license"`
		WithoutLicense    int64 `json:"without_license"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &stats)
	require.Equal(t, int64(2), stats.Total)
	require.Equal(t, int64(1), stats.WithActiveLicense)
	require.Equal(t, int64(1), stats.WithoutLicense)
}

func TestDeviceExport(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.SuperuserToken()
	device := createDevice(t, env, token, "SVC-EXPORT")

	w := env.Request(http.MethodGet, "/api/devices/"+device.ID+"/export", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.Header().Get("Content-Type"))
	require.Equal(t, `attachment; filename="device_SVC-EXPORT.xlsx"`, w.Header().Get("Content-Disposition"))
	require.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))

	w = env.Request(http.MethodGet, "/api/devices/"+device.ID+"/export?format=PDF", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	require.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))

	w = env.Request(http.MethodGet, "/api/devices/"+device.ID+"/export?format=csv", nil, token)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

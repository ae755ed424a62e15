package handlers_test

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/licensewatch/internal/handlers/testutil"
)

func TestAuditLogQueries(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := env.CreateUser("owner@example.com", "password123", false)
	ownerToken := env.TokenFor(owner)
	device := createDevice(t, env, ownerToken, "SVC-001")
	first := createLicense(t, env, ownerToken, device.ID, "pro", dateIn(30))
	createLicense(t, env, ownerToken, device.ID, "basic", dateIn(60))

	w := env.Request(http.MethodPatch, "/api/licenses/"+first.ID, map[string]string{"license_type": "pro plus"}, ownerToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Equal(t, http.StatusForbidden, env.Request(http.MethodGet, "/api/audit", nil, ownerToken).Code)

	token := env.SuperuserToken()
	w = env.Request(http.MethodGet, "/api/audit", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, int64(3), testutil.DecodeResponse(t, w).Meta.Count)

	w = env.Request(http.MethodGet, "/api/audit?action=update", nil, token)
	resp := testutil.DecodeResponse(t, w)
	require.Equal(t, int64(1), resp.Meta.Count)
	var entries []auditPayload
	testutil.DecodeInto(t, resp.Data, &entries)
	require.Equal(t, first.ID, entries[0].EntityID)
	require.Contains(t, string(entries[0].Changes), "pro plus")
	require.Equal(t, "192.0.2.1", entries[0].IPAddress)

	w = env.Request(http.MethodGet, "/api/audit?entity_type=license&entity_id="+first.ID, nil, token)
	require.Equal(t, int64(2), testutil.DecodeResponse(t, w).Meta.Count)

	w = env.Request(http.MethodGet, "/api/audit?user_id="+owner.ID, nil, token)
	require.Equal(t, int64(3), testutil.DecodeResponse(t, w).Meta.Count)

	future := url.QueryEscape(time.Now().Add(time.Hour).UTC().Format(time.RFC3339))
	w = env.Request(http.MethodGet, "/api/audit?since="+future, nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Zero(t, testutil.DecodeResponse(t, w).Meta.Count)

	require.Equal(t, http.StatusBadRequest, env.Request(http.MethodGet, "/api/audit?until=yesterday", nil, token).Code)

	w = env.Request(http.MethodGet, "/api/audit/license/"+first.ID, nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &entries)
	require.Len(t, entries, 2)
}

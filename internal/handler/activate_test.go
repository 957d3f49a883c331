package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/keypilot/keypilot-api/internal/activation"
	"github.com/keypilot/keypilot-api/internal/config"
	"github.com/keypilot/keypilot-api/internal/domain/app"
	"github.com/keypilot/keypilot-api/internal/domain/license"
	"github.com/keypilot/keypilot-api/internal/geoip"
	"github.com/keypilot/keypilot-api/internal/handler/middleware"
	"github.com/keypilot/keypilot-api/internal/service"
	"github.com/keypilot/keypilot-api/internal/storage/memstorage"
	"github.com/keypilot/keypilot-api/internal/telemetry"
	"github.com/keypilot/keypilot-api/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testAppSecret = "4f1d3a9c0b827e6655aa19c3d2e8f7a64f1d3a9c0b827e6655aa19c3d2e8f7a6"

type activateTestEnv struct {
	router *gin.Engine
	store  *memstorage.Store
	issuer *token.Issuer
	appID  int64
}

func newActivateTestEnv(t *testing.T) *activateTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	nop := zap.NewNop()
	store := memstorage.NewStore()

	appID, err := store.Apps().Create(context.Background(), &app.App{
		Name:   "desktop-suite",
		Secret: testAppSecret,
	})
	require.NoError(t, err)

	recorder := telemetry.NewDirectRecorder(store.Tracking(), nop)
	engine := activation.NewEngine(store.Licenses(), store.Machines(), recorder, nop)
	issuer := token.NewIssuer(&config.TokenConfig{TTL: time.Minute}, nop)
	// Unroutable base URL: lookups degrade to Unknown without network.
	geo := geoip.NewClient(&config.GeoIPConfig{BaseURL: "http://127.0.0.1:0", Timeout: 50 * time.Millisecond}, nop)
	appService := service.NewAppService(store.Apps(), nop)

	h := NewActivateHandler(engine, issuer, appService, geo, nop)

	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(nop))
	router.POST("/api/v1/license/activate", h.Activate)

	return &activateTestEnv{router: router, store: store, issuer: issuer, appID: appID}
}

func (env *activateTestEnv) seedLicense(t *testing.T, key string) int64 {
	t.Helper()
	id, err := env.store.Licenses().Create(context.Background(), &license.License{
		AppID:      env.appID,
		LicenseKey: key,
		Type:       license.TypeLifetime,
		Status:     license.StatusActive,
	})
	require.NoError(t, err)
	return id
}

func (env *activateTestEnv) post(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/license/activate", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "desktop-suite/2.4.1")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func TestActivateEndpointSuccess(t *testing.T) {
	env := newActivateTestEnv(t)
	licenseID := env.seedLicense(t, "AAAA-BBBB-CCCC-DDDD")

	w := env.post(t, fmt.Sprintf(`{"app_id": %d, "license_key": "AAAA-BBBB-CCCC-DDDD", "hwid": "machine-01"}`, env.appID))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)

	claims, err := env.issuer.Verify(resp.Token, testAppSecret)
	require.NoError(t, err)
	assert.Equal(t, licenseID, claims.LicenseID)
	assert.Equal(t, env.appID, claims.AppID)
	assert.Equal(t, string(license.TypeLifetime), claims.Type)
	assert.Nil(t, claims.LicenseExpiresAt)

	lic, err := env.store.Licenses().FindByID(context.Background(), licenseID)
	require.NoError(t, err)
	assert.Equal(t, license.StatusUsed, lic.Status)
}

func TestActivateEndpointUnknownKey(t *testing.T) {
	env := newActivateTestEnv(t)

	w := env.post(t, fmt.Sprintf(`{"app_id": %d, "license_key": "ZZZZ-ZZZZ-ZZZZ-ZZZZ", "hwid": "machine-01"}`, env.appID))
	require.Equal(t, http.StatusNotFound, w.Code)

	var resp struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "license_not_found", resp.Code)
}

func TestActivateEndpointBoundElsewhere(t *testing.T) {
	env := newActivateTestEnv(t)
	env.seedLicense(t, "AAAA-BBBB-CCCC-DDDD")

	first := env.post(t, fmt.Sprintf(`{"app_id": %d, "license_key": "AAAA-BBBB-CCCC-DDDD", "hwid": "machine-01"}`, env.appID))
	require.Equal(t, http.StatusOK, first.Code)

	second := env.post(t, fmt.Sprintf(`{"app_id": %d, "license_key": "AAAA-BBBB-CCCC-DDDD", "hwid": "machine-02"}`, env.appID))
	require.Equal(t, http.StatusForbidden, second.Code)

	var resp struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.Equal(t, "already_bound", resp.Code)
}

func TestActivateEndpointRepeatActivation(t *testing.T) {
	env := newActivateTestEnv(t)
	env.seedLicense(t, "AAAA-BBBB-CCCC-DDDD")

	first := env.post(t, fmt.Sprintf(`{"app_id": %d, "license_key": "AAAA-BBBB-CCCC-DDDD", "hwid": "machine-01"}`, env.appID))
	require.Equal(t, http.StatusOK, first.Code)

	// Same machine, raw hwid differing only in case and whitespace.
	repeat := env.post(t, fmt.Sprintf(`{"app_id": %d, "license_key": "AAAA-BBBB-CCCC-DDDD", "hwid": "  MACHINE-01 "}`, env.appID))
	require.Equal(t, http.StatusOK, repeat.Code)
}

func TestActivateEndpointMissingFields(t *testing.T) {
	env := newActivateTestEnv(t)

	cases := []struct {
		name string
		body string
	}{
		{"empty body", `{}`},
		{"missing hwid", fmt.Sprintf(`{"app_id": %d, "license_key": "AAAA-BBBB-CCCC-DDDD"}`, env.appID)},
		{"missing key", fmt.Sprintf(`{"app_id": %d, "hwid": "machine-01"}`, env.appID)},
		{"malformed json", `{"app_id": `},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.post(t, tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestActivateEndpointTrialExpiry(t *testing.T) {
	env := newActivateTestEnv(t)

	// Trial with a 1-day window created two days ago.
	licenseID, err := env.store.Licenses().Create(context.Background(), &license.License{
		AppID:        env.appID,
		LicenseKey:   "TTTT-TTTT-TTTT-TTTT",
		Type:         license.TypeTrial,
		DurationDays: sql.NullInt32{Int32: 1, Valid: true},
		Status:       license.StatusActive,
		CreatedAt:    time.Now().Add(-48 * time.Hour),
	})
	require.NoError(t, err)

	w := env.post(t, fmt.Sprintf(`{"app_id": %d, "license_key": "TTTT-TTTT-TTTT-TTTT", "hwid": "machine-01"}`, env.appID))
	require.Equal(t, http.StatusForbidden, w.Code)

	var resp struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "license_expired", resp.Code)

	lic, err := env.store.Licenses().FindByID(context.Background(), licenseID)
	require.NoError(t, err)
	assert.Equal(t, license.StatusExpired, lic.Status)
}

package v0_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	v0 "github.com/tabwarden/tabwarden/internal/api/v0"
	authmocks "github.com/tabwarden/tabwarden/internal/auth/mocks"
	"github.com/tabwarden/tabwarden/internal/settings"
	settingsmocks "github.com/tabwarden/tabwarden/internal/settings/mocks"
)

type fakeTrigger struct {
	calls atomic.Int64
}

func (f *fakeTrigger) TriggerSync() {
	f.calls.Add(1)
}

func TestGetAuthState(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	oracle := authmocks.NewMockOracle(ctrl)
	oracle.EXPECT().IsAuthenticated(gomock.Any()).Return(true)

	router := v0.Router(oracle, settingsmocks.NewMockStore(ctrl), &fakeTrigger{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp v0.AuthStateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.IsAuthenticated)
}

func TestGetSettings(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	store := settingsmocks.NewMockStore(ctrl)
	store.EXPECT().Get(gomock.Any()).Return(settings.Defaults(), nil)

	router := v0.Router(authmocks.NewMockOracle(ctrl), store, &fakeTrigger{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/settings", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got settings.SyncSettings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Pull Requests", got.ContainerName)
	assert.Equal(t, 1, got.RefreshIntervalMinutes)
}

func TestPatchSettingsTriggersSync(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	store := settingsmocks.NewMockStore(ctrl)
	store.EXPECT().Set(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ any, patch settings.Patch) (settings.SyncSettings, error) {
			require.NotNil(t, patch.ContainerName)
			assert.Equal(t, "My PRs", *patch.ContainerName)
			s := settings.Defaults()
			patch.Apply(&s)
			return s, nil
		})

	trigger := &fakeTrigger{}
	router := v0.Router(authmocks.NewMockOracle(ctrl), store, trigger)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/settings", strings.NewReader(`{"containerName":"My PRs"}`))
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp v0.WriteSettingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, int64(1), trigger.calls.Load(), "write triggers an immediate sync round")
}

func TestPatchSettingsIgnoresBookkeepingFields(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	store := settingsmocks.NewMockStore(ctrl)
	store.EXPECT().Set(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ any, patch settings.Patch) (settings.SyncSettings, error) {
			assert.Nil(t, patch.LastSyncTime, "clients cannot rewrite the sync timestamp")
			assert.Nil(t, patch.ContainerHandle, "clients cannot repoint the container")
			assert.Nil(t, patch.LastItemCount, "clients cannot skew the transient-title delta")
			require.NotNil(t, patch.ContainerName)
			assert.Equal(t, "My PRs", *patch.ContainerName)
			s := settings.Defaults()
			patch.Apply(&s)
			return s, nil
		})

	router := v0.Router(authmocks.NewMockOracle(ctrl), store, &fakeTrigger{})

	rec := httptest.NewRecorder()
	body := `{"containerName":"My PRs","lastSyncTime":12345,"containerHandle":"99","lastItemCount":40}`
	req := httptest.NewRequest(http.MethodPatch, "/settings", strings.NewReader(body))
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPatchSettingsValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{
			name: "malformed json",
			body: `{"containerName":`,
		},
		{
			name: "invalid filter mode",
			body: `{"filterMode":"everything"}`,
		},
		{
			name: "non-positive interval",
			body: `{"refreshIntervalMinutes":0}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			trigger := &fakeTrigger{}
			router := v0.Router(authmocks.NewMockOracle(ctrl), settingsmocks.NewMockStore(ctrl), trigger)

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPatch, "/settings", strings.NewReader(tt.body))
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, trigger.calls.Load(), "rejected writes trigger nothing")
		})
	}
}

func TestHealthRouter(t *testing.T) {
	t.Parallel()
	router := v0.HealthRouter()

	for _, path := range []string{"/health", "/version"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

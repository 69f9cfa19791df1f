package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/tabwarden/tabwarden/internal/api"
	authmocks "github.com/tabwarden/tabwarden/internal/auth/mocks"
	"github.com/tabwarden/tabwarden/internal/settings"
	settingsmocks "github.com/tabwarden/tabwarden/internal/settings/mocks"
)

type noopTrigger struct{}

func (noopTrigger) TriggerSync() {}

func TestNewServerRoutes(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	oracle := authmocks.NewMockOracle(ctrl)
	oracle.EXPECT().IsAuthenticated(gomock.Any()).Return(false).AnyTimes()
	store := settingsmocks.NewMockStore(ctrl)
	store.EXPECT().Get(gomock.Any()).Return(settings.Defaults(), nil).AnyTimes()

	srv := api.NewServer(oracle, store, noopTrigger{}, api.WithMiddlewares(api.LoggingMiddleware))

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"health", http.MethodGet, "/health", http.StatusOK},
		{"version", http.MethodGet, "/version", http.StatusOK},
		{"auth state", http.MethodGet, "/api/v0/auth", http.StatusOK},
		{"settings", http.MethodGet, "/api/v0/settings", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"unknown", http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

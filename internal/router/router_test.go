package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethoslog/internal/db"
	"github.com/ethoslog/internal/handler"
	"github.com/ethoslog/internal/observability"
	"github.com/ethoslog/internal/progress"
	"github.com/ethoslog/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestRouter(t *testing.T) (*gin.Engine, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	catalog, err := progress.NewCatalog(nil)
	if err != nil {
		t.Fatalf("failed to build catalog: %v", err)
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewProgressMetrics(reg)
	stack := service.NewStack(gdb, catalog, service.StackOptions{Recorder: metrics})

	return SetupRouter(handler.NewAPI(stack), reg), func() {
		sqlDB.Close()
	}
}

func TestSetupRouterPing(t *testing.T) {
	r, cleanup := setupTestRouter(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "pong") {
		t.Fatalf("unexpected body, got %q", rr.Body.String())
	}
}

func TestSetupRouterRequiresUser(t *testing.T) {
	r, cleanup := setupTestRouter(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/api/progress", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/progress", nil)
	req.Header.Set("X-User-ID", "alice")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
}

func TestSetupRouterExposesMetrics(t *testing.T) {
	r, cleanup := setupTestRouter(t)
	defer cleanup()

	body := `{"name":"Bench","category":"push","sets":2}`
	req := httptest.NewRequest(http.MethodPost, "/api/workouts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "alice")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "ethoslog_progress_contracts_total") {
		t.Fatalf("expected progress metrics in output")
	}
}

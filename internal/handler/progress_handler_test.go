package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ethoslog/internal/db"
	"github.com/ethoslog/internal/progress"
	"github.com/ethoslog/internal/service"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestAPI(t *testing.T) (*API, func()) {
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

	catalog, err := progress.NewCatalog([]progress.Definition{{
		ID:            "first_task",
		Title:         "First Task",
		XPReward:      20,
		RequiresClaim: true,
		Requirement:   progress.Requirement{Metric: progress.MetricTasksCompleted, Threshold: 1},
	}})
	if err != nil {
		t.Fatalf("failed to build catalog: %v", err)
	}

	now := func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) }
	stack := service.NewStack(gdb, catalog, service.StackOptions{Now: now})
	return NewAPI(stack), func() {
		sqlDB.Close()
	}
}

// perform 以 alice 身份直接调用 handler
func perform(h gin.HandlerFunc, method string, payload any, params ...gin.Param) *httptest.ResponseRecorder {
	var body *bytes.Reader
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, "/api/test", body)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = params
	c.Set(userIDContextKey, "alice")

	h(c)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}

func createTestTask(t *testing.T, api *API) uint {
	t.Helper()
	w := perform(api.CreateTask, http.MethodPost, map[string]any{
		"name":     "Daily Pushups",
		"pattern":  "daily",
		"category": "push",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Task struct {
			ID uint `json:"id"`
		} `json:"task"`
	}
	decode(t, w, &resp)
	return resp.Task.ID
}

func idParam(id uint) gin.Param {
	return gin.Param{Key: "id", Value: strconv.Itoa(int(id))}
}

func TestCreateTaskValidation(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	w := perform(api.CreateTask, http.MethodPost, map[string]any{"pattern": "daily"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for missing name, got %d", w.Code)
	}

	w = perform(api.CreateTask, http.MethodPost, map[string]any{"name": "Read", "pattern": "custom"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for custom without days, got %d", w.Code)
	}

	w = perform(api.GetTask, http.MethodGet, nil, gin.Param{Key: "id", Value: "abc"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for bad id, got %d", w.Code)
	}

	w = perform(api.GetTask, http.MethodGet, nil, idParam(999))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for missing task, got %d", w.Code)
	}
}

func TestCompleteTaskFlow(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	id := createTestTask(t, api)

	w := perform(api.CompleteTask, http.MethodPost, map[string]any{"date": "2024-03-10", "token": "tok-1"}, idParam(id))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var res resultPayload
	decode(t, w, &res)
	if !res.Success || res.XPAwarded != 10 || res.Token != "tok-1" {
		t.Fatalf("unexpected result: %+v", res)
	}

	w = perform(api.CompleteTask, http.MethodPost, map[string]any{"date": "2024-03-10", "token": "tok-1"}, idParam(id))
	decode(t, w, &res)
	if !res.Duplicate {
		t.Fatalf("expected duplicate replay, got %+v", res)
	}

	w = perform(api.CompleteTask, http.MethodPost, map[string]any{"date": "2024-03-01"}, idParam(id))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 before creation date, got %d", w.Code)
	}
	var errResp map[string]string
	decode(t, w, &errResp)
	if errResp["code"] != string(progress.CodeValidation) {
		t.Fatalf("expected validation code, got %v", errResp)
	}

	w = perform(api.CompleteTask, http.MethodPost, map[string]any{"date": "10/03/2024"}, idParam(id))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for bad date, got %d", w.Code)
	}

	// 空请求体表示今天
	w = perform(api.UncompleteTask, http.MethodPost, nil, idParam(id))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	decode(t, w, &res)
	if res.OriginalToken != "tok-1" || res.XPAwarded != -10 {
		t.Fatalf("unexpected reverse result: %+v", res)
	}
}

func TestReverseEventStatuses(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	id := createTestTask(t, api)
	if w := perform(api.CompleteTask, http.MethodPost, map[string]any{"token": "tok-r"}, idParam(id)); w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	w := perform(api.ReverseEvent, http.MethodPost, nil, gin.Param{Key: "token", Value: "missing"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for unknown token, got %d", w.Code)
	}

	w = perform(api.ReverseEvent, http.MethodPost, nil, gin.Param{Key: "token", Value: "tok-r"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	w = perform(api.ReverseEvent, http.MethodPost, nil, gin.Param{Key: "token", Value: "tok-r"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected status 409 on second reversal, got %d", w.Code)
	}

	w = perform(api.ListEvents, http.MethodGet, nil)
	var events struct {
		Events []map[string]any `json:"events"`
	}
	decode(t, w, &events)
	if len(events.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events.Events))
	}
}

func TestSubmitContract(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	w := perform(api.SubmitContract, http.MethodPost, map[string]any{
		"token":     "c-1",
		"source":    "workouts",
		"action":    "workout_completed",
		"timestamp": "2024-03-10T08:00:00Z",
		"metadata":  map[string]any{"category": "legs", "sets": 4, "bonusXp": 2},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var res resultPayload
	decode(t, w, &res)
	if res.XPAwarded != 22 {
		t.Fatalf("expected 22 xp, got %+v", res)
	}

	w = perform(api.SubmitContract, http.MethodPost, map[string]any{
		"token":     "c-2",
		"source":    "workouts",
		"action":    "reverse_achievement_claimed",
		"timestamp": "2024-03-10T08:00:00Z",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for unknown action, got %d", w.Code)
	}

	w = perform(api.GetProgress, http.MethodGet, nil)
	var view map[string]any
	decode(t, w, &view)
	if view["total_xp"].(float64) != 22 || view["workouts_completed"].(float64) != 1 {
		t.Fatalf("unexpected progress view: %v", view)
	}
}

func TestAchievementAndBodyweightHandlers(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	w := perform(api.ClaimAchievement, http.MethodPost, nil, gin.Param{Key: "id", Value: "first_task"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for ineligible claim, got %d: %s", w.Code, w.Body.String())
	}

	id := createTestTask(t, api)
	perform(api.CompleteTask, http.MethodPost, nil, idParam(id))

	w = perform(api.ClaimAchievement, http.MethodPost, nil, gin.Param{Key: "id", Value: "first_task"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var res resultPayload
	decode(t, w, &res)
	if res.XPAwarded != 20 || len(res.AchievementsUnlocked) != 1 {
		t.Fatalf("unexpected claim result: %+v", res)
	}

	w = perform(api.ClaimAchievement, http.MethodPost, nil, gin.Param{Key: "id", Value: "nope"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}

	w = perform(api.ListAchievements, http.MethodGet, nil)
	var list struct {
		Achievements []struct {
			Status string `json:"status"`
		} `json:"achievements"`
	}
	decode(t, w, &list)
	if len(list.Achievements) != 1 || list.Achievements[0].Status != service.AchievementClaimed {
		t.Fatalf("unexpected achievements: %+v", list)
	}

	w = perform(api.LogBodyweight, http.MethodPost, map[string]any{"value": 81.2, "unit": "kg"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	w = perform(api.LogBodyweight, http.MethodPost, map[string]any{"value": -1, "unit": "kg"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for negative weight, got %d", w.Code)
	}

	w = perform(api.GetHistory, http.MethodGet, nil)
	var history struct {
		History []map[string]any `json:"history"`
	}
	decode(t, w, &history)
	if len(history.History) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history.History))
	}
}

func TestWorkoutHandlers(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	w := perform(api.LogWorkout, http.MethodPost, map[string]any{"name": "Squat", "category": "legs", "sets": 5, "token": "w-1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Workout struct {
			ID uint `json:"id"`
		} `json:"workout"`
		Result resultPayload `json:"result"`
	}
	decode(t, w, &resp)
	if resp.Result.XPAwarded != 25 {
		t.Fatalf("expected 25 xp, got %+v", resp.Result)
	}

	w = perform(api.LogWorkout, http.MethodPost, map[string]any{"category": "legs", "sets": 0})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for zero sets, got %d", w.Code)
	}

	w = perform(api.DeleteWorkout, http.MethodDelete, nil, idParam(resp.Workout.ID))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	w = perform(api.DeleteWorkout, http.MethodDelete, nil, idParam(resp.Workout.ID))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 on second delete, got %d", w.Code)
	}
}

func TestHandleProgressErrorInternal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	handleProgressError(c, errors.New("disk full"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", w.Code)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("disk full")) {
		t.Fatal("internal error details must not leak")
	}
	if len(c.Errors) != 1 {
		t.Fatalf("expected error recorded on context, got %d", len(c.Errors))
	}
}

func TestRequireUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequireUser())
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, currentUser(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(userIDHeader, " alice ")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "alice" {
		t.Fatalf("unexpected response %d %q", w.Code, w.Body.String())
	}
}

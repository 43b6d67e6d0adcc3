package handler

import (
	"time"

	"github.com/ethoslog/internal/service"
)

// API 汇总 HTTP handler 共用的依赖
type API struct {
	tasks    *service.TaskService
	progress *service.ProgressService
	workouts *service.WorkoutService
	now      func() time.Time
}

// NewAPI 基于共享的进度组件构建 handler
func NewAPI(stack *service.Stack) *API {
	now := stack.Now
	if now == nil {
		now = time.Now
	}
	return &API{
		tasks:    service.NewTaskService(stack),
		progress: service.NewProgressService(stack),
		workouts: service.NewWorkoutService(stack),
		now:      now,
	}
}

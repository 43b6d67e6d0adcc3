package handler

import (
	"net/http"
	"time"

	"github.com/ethoslog/internal/progress"
	"github.com/ethoslog/internal/repository"
	"github.com/ethoslog/internal/service"
	"github.com/gin-gonic/gin"
)

const dateFormat = "2006-01-02"

type taskPayload struct {
	Name          string `json:"name" binding:"required,max=200"`
	Description   string `json:"description" binding:"max=2000"`
	ScheduledTime string `json:"scheduled_time"`
	Pattern       string `json:"pattern" binding:"required"`
	CustomDays    []int  `json:"custom_days" binding:"omitempty,dive,min=0,max=6"`
	Category      string `json:"category"`
}

type toggleTaskPayload struct {
	Date  string `json:"date"`
	Token string `json:"token" binding:"max=128"`
}

func (p taskPayload) toInput() service.TaskInput {
	return service.TaskInput{
		Name:          p.Name,
		Description:   p.Description,
		ScheduledTime: p.ScheduledTime,
		Pattern:       p.Pattern,
		CustomDays:    p.CustomDays,
		Category:      p.Category,
	}
}

// ListTasks 返回任务列表 JSON
func (a *API) ListTasks(c *gin.Context) {
	filter := repository.TaskFilter{
		Pattern:  c.Query("pattern"),
		Category: c.Query("category"),
		Search:   c.Query("search"),
	}

	tasks, err := a.tasks.List(c.Request.Context(), currentUser(c), filter)
	if err != nil {
		handleProgressError(c, err)
		return
	}

	items := make([]gin.H, 0, len(tasks))
	for _, task := range tasks {
		items = append(items, taskToPayload(task))
	}
	c.JSON(http.StatusOK, gin.H{"tasks": items})
}

// GetTask 返回单个任务
func (a *API) GetTask(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的任务ID")
		return
	}

	task, err := a.tasks.Get(c.Request.Context(), currentUser(c), id)
	if err != nil {
		handleProgressError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": taskToPayload(*task)})
}

// CreateTask 新建任务
func (a *API) CreateTask(c *gin.Context) {
	var payload taskPayload
	if !bindJSON(c, &payload, "请求参数错误") {
		return
	}

	task, err := a.tasks.Create(c.Request.Context(), currentUser(c), payload.toInput())
	if err != nil {
		handleProgressError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"task": taskToPayload(*task)})
}

// UpdateTask 更新任务
func (a *API) UpdateTask(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的任务ID")
		return
	}

	var payload taskPayload
	if !bindJSON(c, &payload, "请求参数错误") {
		return
	}

	task, err := a.tasks.Update(c.Request.Context(), currentUser(c), id, payload.toInput())
	if err != nil {
		handleProgressError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": taskToPayload(*task)})
}

// DeleteTask 删除任务，已获得的 XP 不回收
func (a *API) DeleteTask(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的任务ID")
		return
	}

	if err := a.tasks.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		handleProgressError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CompleteTask 完成某天的任务
func (a *API) CompleteTask(c *gin.Context) {
	a.toggleTask(c, true)
}

// UncompleteTask 取消某天的完成
func (a *API) UncompleteTask(c *gin.Context) {
	a.toggleTask(c, false)
}

func (a *API) toggleTask(c *gin.Context, complete bool) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的任务ID")
		return
	}

	var payload toggleTaskPayload
	if !bindOptionalJSON(c, &payload, "请求参数错误") {
		return
	}

	date, err := service.ParseDate(payload.Date, a.now())
	if err != nil {
		handleProgressError(c, err)
		return
	}

	var res *progress.Result
	if complete {
		res, err = a.tasks.Complete(c.Request.Context(), currentUser(c), id, date, payload.Token)
	} else {
		res, err = a.tasks.Uncomplete(c.Request.Context(), currentUser(c), id, date, payload.Token)
	}
	if err != nil {
		handleProgressError(c, err)
		return
	}
	c.JSON(http.StatusOK, resultToPayload(res))
}

func taskToPayload(task progress.Task) gin.H {
	history := make([]string, 0, len(task.CompletionHistory))
	for _, d := range task.CompletionHistory {
		history = append(history, d.Format(dateFormat))
	}
	days := make([]int, 0, len(task.CustomDays))
	for _, d := range task.CustomDays {
		days = append(days, int(d))
	}

	payload := gin.H{
		"id":                 task.ID,
		"name":               task.Name,
		"description":        task.Description,
		"scheduled_time":     task.ScheduledTime,
		"pattern":            task.Pattern,
		"custom_days":        days,
		"category":           task.Category,
		"current_streak":     task.CurrentStreak,
		"best_streak":        task.BestStreak,
		"completed":          task.Completed,
		"completion_history": history,
		"created_at":         task.CreatedAt.Format(time.RFC3339),
	}
	if task.LastCompletedDate != nil {
		payload["last_completed_date"] = task.LastCompletedDate.Format(dateFormat)
	}
	return payload
}

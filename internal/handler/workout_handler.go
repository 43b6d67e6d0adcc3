package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/ethoslog/internal/db"
	"github.com/ethoslog/internal/service"
	"github.com/gin-gonic/gin"
)

type workoutPayload struct {
	Name        string `json:"name" binding:"max=200"`
	Category    string `json:"category" binding:"required"`
	Sets        int    `json:"sets" binding:"required,gt=0"`
	BonusXP     int    `json:"bonus_xp" binding:"gte=0"`
	PerformedAt string `json:"performed_at"`
	Token       string `json:"token" binding:"max=128"`
}

// ListWorkouts 返回未撤销的训练记录
func (a *API) ListWorkouts(c *gin.Context) {
	workouts, err := a.workouts.List(c.Request.Context(), currentUser(c), parseLimit(c))
	if err != nil {
		handleProgressError(c, err)
		return
	}

	items := make([]gin.H, 0, len(workouts))
	for _, w := range workouts {
		items = append(items, workoutToPayload(w))
	}
	c.JSON(http.StatusOK, gin.H{"workouts": items})
}

// LogWorkout 记录训练并发放 XP
func (a *API) LogWorkout(c *gin.Context) {
	var payload workoutPayload
	if !bindJSON(c, &payload, "请求参数错误") {
		return
	}

	performed, err := parsePerformedAt(payload.PerformedAt, a.now())
	if err != nil {
		handleProgressError(c, err)
		return
	}

	workout, res, err := a.workouts.Log(c.Request.Context(), currentUser(c), service.WorkoutInput{
		Name:        payload.Name,
		Category:    payload.Category,
		Sets:        payload.Sets,
		BonusXP:     payload.BonusXP,
		PerformedAt: performed,
		Token:       payload.Token,
	})
	if err != nil {
		handleProgressError(c, err)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	body := gin.H{"result": resultToPayload(res)}
	if workout != nil {
		body["workout"] = workoutToPayload(*workout)
	}
	c.JSON(status, body)
}

// DeleteWorkout 撤销训练并扣回 XP
func (a *API) DeleteWorkout(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的训练ID")
		return
	}

	res, err := a.workouts.Delete(c.Request.Context(), currentUser(c), id)
	if err != nil {
		handleProgressError(c, err)
		return
	}
	c.JSON(http.StatusOK, resultToPayload(res))
}

// parsePerformedAt 接受 RFC3339 或日期，空值表示当前时间
func parsePerformedAt(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return service.ParseDate(raw, now)
}

func workoutToPayload(w db.Workout) gin.H {
	return gin.H{
		"id":           w.ID,
		"name":         w.Name,
		"category":     w.Category,
		"sets":         w.Sets,
		"bonus_xp":     w.BonusXP,
		"xp_awarded":   w.XPAwarded,
		"performed_at": w.PerformedAt.Format(time.RFC3339),
		"token":        w.Token,
	}
}

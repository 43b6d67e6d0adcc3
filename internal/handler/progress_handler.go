package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/ethoslog/internal/progress"
	"github.com/ethoslog/internal/service"
	"github.com/gin-gonic/gin"
)

type bodyweightPayload struct {
	Value float64 `json:"value" binding:"required,gt=0"`
	Unit  string  `json:"unit" binding:"required"`
	Date  string  `json:"date"`
}

type tokenPayload struct {
	Token string `json:"token" binding:"max=128"`
}

type achievementPayload struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	XPReward      int    `json:"xp_reward"`
	RequiresClaim bool   `json:"requires_claim"`
}

type resultPayload struct {
	Success              bool                 `json:"success"`
	XPAwarded            int                  `json:"xp_awarded"`
	LeveledUp            bool                 `json:"leveled_up"`
	CurrentLevel         int                  `json:"current_level"`
	AchievementsUnlocked []achievementPayload `json:"achievements_unlocked"`
	AchievementXP        int                  `json:"achievement_xp"`
	Token                string               `json:"token"`
	OriginalToken        string               `json:"original_token,omitempty"`
	ReverseToken         string               `json:"reverse_token,omitempty"`
	Duplicate            bool                 `json:"duplicate"`
	AlreadyDone          bool                 `json:"already_done"`
	Warning              string               `json:"warning,omitempty"`
	Message              string               `json:"message,omitempty"`
}

// GetProgress 返回等级、XP 与各类别进度
func (a *API) GetProgress(c *gin.Context) {
	view, err := a.progress.Overview(c.Request.Context(), currentUser(c))
	if err != nil {
		handleProgressError(c, err)
		return
	}

	categories := make([]gin.H, 0, len(view.Categories))
	for _, cat := range view.Categories {
		categories = append(categories, gin.H{
			"category":         cat.Category,
			"level":            cat.Level,
			"xp":               cat.XP,
			"next_level_xp":    cat.NextLevelXP,
			"xp_to_next_level": cat.XPToNextLevel,
		})
	}

	payload := gin.H{
		"user_id":              view.UserID,
		"level":                view.Level,
		"total_xp":             view.TotalXP,
		"next_level_xp":        view.NextLevelXP,
		"xp_to_next_level":     view.XPToNextLevel,
		"categories":           categories,
		"longest_streak":       view.LongestStreak,
		"tasks_completed":      view.TasksCompleted,
		"workouts_completed":   view.WorkoutsCompleted,
		"achievements":         nonNil(view.Achievements),
		"pending_achievements": nonNil(view.Pending),
	}
	if view.LatestBodyweight != nil {
		payload["latest_bodyweight"] = bodyweightToPayload(*view.LatestBodyweight)
	}
	c.JSON(http.StatusOK, payload)
}

// GetHistory 返回 XP 流水，最新在前
func (a *API) GetHistory(c *gin.Context) {
	history, err := a.progress.History(c.Request.Context(), currentUser(c), parseLimit(c))
	if err != nil {
		handleProgressError(c, err)
		return
	}

	items := make([]gin.H, 0, len(history))
	for _, tx := range history {
		items = append(items, gin.H{
			"date":        tx.Date.Format(time.RFC3339),
			"amount":      tx.Amount,
			"source":      tx.Source,
			"category":    tx.Category,
			"description": tx.Description,
		})
	}
	c.JSON(http.StatusOK, gin.H{"history": items})
}

// ListBodyweight 返回体重记录
func (a *API) ListBodyweight(c *gin.Context) {
	entries, err := a.progress.Bodyweight(c.Request.Context(), currentUser(c))
	if err != nil {
		handleProgressError(c, err)
		return
	}

	items := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		items = append(items, bodyweightToPayload(e))
	}
	c.JSON(http.StatusOK, gin.H{"bodyweight": items})
}

// LogBodyweight 记录体重
func (a *API) LogBodyweight(c *gin.Context) {
	var payload bodyweightPayload
	if !bindJSON(c, &payload, "请求参数错误") {
		return
	}

	date, err := service.ParseDate(payload.Date, a.now())
	if err != nil {
		handleProgressError(c, err)
		return
	}

	entry, award, err := a.progress.LogBodyweight(c.Request.Context(), currentUser(c), payload.Value, payload.Unit, date)
	if err != nil {
		handleProgressError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"entry":                 bodyweightToPayload(entry),
		"achievements_unlocked": definitionsToPayload(award.Unlocked),
		"achievements_pending":  nonNil(award.NewlyPending),
	})
}

// ListAchievements 返回成就目录及当前用户的状态
func (a *API) ListAchievements(c *gin.Context) {
	statuses, err := a.progress.Achievements(c.Request.Context(), currentUser(c))
	if err != nil {
		handleProgressError(c, err)
		return
	}

	items := make([]gin.H, 0, len(statuses))
	for _, st := range statuses {
		item := gin.H{
			"achievement": definitionToPayload(st.Definition),
			"status":      st.Status,
			"eligible":    st.Eligibility.Eligible,
			"current":     st.Eligibility.Current,
			"threshold":   st.Definition.Requirement.Threshold,
		}
		if st.Eligibility.Reason != "" {
			item["reason"] = st.Eligibility.Reason
		}
		items = append(items, item)
	}
	c.JSON(http.StatusOK, gin.H{"achievements": items})
}

// ClaimAchievement 领取待领取的成就
func (a *API) ClaimAchievement(c *gin.Context) {
	var payload tokenPayload
	if !bindOptionalJSON(c, &payload, "请求参数错误") {
		return
	}

	res, err := a.progress.Claim(c.Request.Context(), currentUser(c), c.Param("id"), payload.Token)
	if err != nil {
		handleProgressError(c, err)
		return
	}
	c.JSON(http.StatusOK, resultToPayload(res))
}

// ListEvents 返回最近的 contract 事件
func (a *API) ListEvents(c *gin.Context) {
	events, err := a.progress.Events(c.Request.Context(), currentUser(c), parseLimit(c))
	if err != nil {
		handleProgressError(c, err)
		return
	}

	items := make([]gin.H, 0, len(events))
	for _, e := range events {
		item := gin.H{
			"token":        e.Token,
			"source":       e.Source,
			"action":       e.Action,
			"direction":    e.Direction,
			"occurred_at":  e.OccurredAt.Format(time.RFC3339),
			"category":     e.Category,
			"xp_awarded":   e.XPAwarded,
			"level":        e.Level,
			"achievements": nonNil(e.Achievements),
		}
		if e.OriginalToken != "" {
			item["original_token"] = e.OriginalToken
		}
		if e.ReversedAt != nil {
			item["reversed_at"] = e.ReversedAt.Format(time.RFC3339)
			item["reversed_by"] = e.ReversedBy
		}
		items = append(items, item)
	}
	c.JSON(http.StatusOK, gin.H{"events": items})
}

// SubmitContract 接收上游模块提交的原始 contract；userId 以请求头为准
func (a *API) SubmitContract(c *gin.Context) {
	var contract progress.Contract
	if !bindJSON(c, &contract, "请求参数错误") {
		return
	}
	contract.UserID = currentUser(c)

	res, err := a.progress.Apply(c.Request.Context(), contract)
	if err != nil {
		handleProgressError(c, err)
		return
	}
	c.JSON(http.StatusOK, resultToPayload(res))
}

// ReverseEvent 冲正指定 token 的事件
func (a *API) ReverseEvent(c *gin.Context) {
	var payload tokenPayload
	if !bindOptionalJSON(c, &payload, "请求参数错误") {
		return
	}

	res, err := a.progress.Reverse(c.Request.Context(), currentUser(c), c.Param("token"), payload.Token)
	if err != nil {
		handleProgressError(c, err)
		return
	}
	c.JSON(http.StatusOK, resultToPayload(res))
}

func resultToPayload(res *progress.Result) resultPayload {
	return resultPayload{
		Success:              res.Success,
		XPAwarded:            res.XPAwarded,
		LeveledUp:            res.LeveledUp,
		CurrentLevel:         res.CurrentLevel,
		AchievementsUnlocked: definitionsToPayload(res.AchievementsUnlocked),
		AchievementXP:        res.AchievementXP,
		Token:                res.Token,
		OriginalToken:        res.OriginalToken,
		ReverseToken:         res.ReverseToken,
		Duplicate:            res.Duplicate,
		AlreadyDone:          res.AlreadyDone,
		Warning:              res.Warning,
		Message:              res.Message,
	}
}

func definitionToPayload(def progress.Definition) achievementPayload {
	return achievementPayload{
		ID:            def.ID,
		Title:         def.Title,
		Description:   def.Description,
		XPReward:      def.XPReward,
		RequiresClaim: def.RequiresClaim,
	}
}

func definitionsToPayload(defs []progress.Definition) []achievementPayload {
	out := make([]achievementPayload, 0, len(defs))
	for _, def := range defs {
		out = append(out, definitionToPayload(def))
	}
	return out
}

func bodyweightToPayload(e progress.BodyweightEntry) gin.H {
	return gin.H{
		"value": e.Value,
		"unit":  e.Unit,
		"date":  e.Date.Format(dateFormat),
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// handleProgressError 把 service 哨兵错误与协调器错误码映射为 HTTP 状态
func handleProgressError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrTaskNotFound):
		respondError(c, http.StatusNotFound, "任务不存在")
		return
	case errors.Is(err, service.ErrWorkoutNotFound):
		respondError(c, http.StatusNotFound, "训练记录不存在")
		return
	case errors.Is(err, service.ErrEventNotFound):
		respondError(c, http.StatusNotFound, "事件不存在")
		return
	case errors.Is(err, service.ErrAchievementNotFound):
		respondError(c, http.StatusNotFound, "成就不存在")
		return
	case errors.Is(err, service.ErrTaskNameRequired):
		respondError(c, http.StatusBadRequest, "任务名称不能为空")
		return
	case errors.Is(err, service.ErrTaskInvalidRecurrence):
		respondError(c, http.StatusBadRequest, "重复规则配置无效")
		return
	case errors.Is(err, service.ErrInvalidDate):
		respondError(c, http.StatusBadRequest, "日期格式应为 YYYY-MM-DD")
		return
	}

	var perr *progress.Error
	if !errors.As(err, &perr) {
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "操作失败")
		return
	}
	switch perr.Code {
	case progress.CodeValidation:
		respondCodedError(c, http.StatusBadRequest, string(perr.Code), perr.Message)
	case progress.CodeNotFound:
		respondCodedError(c, http.StatusNotFound, string(perr.Code), perr.Message)
	case progress.CodeReversalFailed:
		respondCodedError(c, http.StatusConflict, string(perr.Code), perr.Message)
	default:
		c.Error(err)
		respondCodedError(c, http.StatusInternalServerError, string(progress.CodeInternal), "操作失败")
	}
}

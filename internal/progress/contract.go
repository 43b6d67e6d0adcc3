package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// 提交 contract 的来源
const (
	SourceTasks    = "ethos"
	SourceWorkouts = "workouts"
	SourceClaims   = "achievements"
)

// Action 是协调器支持的 contract 动作
type Action string

const (
	ActionTaskCompleted           Action = "task_completed"
	ActionWorkoutCompleted        Action = "workout_completed"
	ActionAchievementClaimed      Action = "achievement_claimed"
	ActionReverseTaskCompleted    Action = "reverse_task_completed"
	ActionReverseWorkoutCompleted Action = "reverse_workout_completed"
)

const reversePrefix = "reverse_"

func ParseAction(input string) (Action, error) {
	a := Action(strings.TrimSpace(strings.ToLower(input)))
	switch a {
	case ActionTaskCompleted, ActionWorkoutCompleted, ActionAchievementClaimed,
		ActionReverseTaskCompleted, ActionReverseWorkoutCompleted:
		return a, nil
	default:
		return "", validationError("unknown action %q", input)
	}
}

func (a Action) IsReverse() bool {
	return strings.HasPrefix(string(a), reversePrefix)
}

// Forward 返回冲正动作对应的正向动作
func (a Action) Forward() Action {
	return Action(strings.TrimPrefix(string(a), reversePrefix))
}

// Reverse 返回正向动作对应的冲正动作
func (a Action) Reverse() Action {
	if a.IsReverse() {
		return a
	}
	return Action(reversePrefix + string(a))
}

// 规则表识别的 metadata 键
const (
	MetaTaskID        = "taskId"
	MetaDate          = "date"
	MetaCategory      = "category"
	MetaSets          = "sets"
	MetaBonusXP       = "bonusXp"
	MetaAchievementID = "achievementId"
	MetaOriginalToken = "originalToken"
	MetaDescription   = "description"
)

// Contract 描述一次影响进度的事件
type Contract struct {
	Token     string         `json:"token" validate:"required,max=128"`
	UserID    string         `json:"userId" validate:"required,max=128"`
	Source    string         `json:"source" validate:"required,max=64"`
	Action    string         `json:"action" validate:"required"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

var contractValidate = validator.New()

// Validate 校验必填字段并解析动作
func (c Contract) Validate() (Action, error) {
	if err := contractValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return "", validationError("invalid contract: %s", strings.Join(fields, ", "))
		}
		return "", validationError("invalid contract: %v", err)
	}
	if c.Timestamp.IsZero() {
		return "", validationError("invalid contract: Timestamp (required)")
	}
	return ParseAction(c.Action)
}

func (c Contract) metaString(key string) string {
	v, ok := c.Metadata[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// metaInt 接受 JSON 数字、Go 整数和数字字符串
func (c Contract) metaInt(key string) (int, bool, error) {
	v, ok := c.Metadata[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch t := v.(type) {
	case int:
		return t, true, nil
	case int64:
		return int(t), true, nil
	case uint:
		return int(t), true, nil
	case uint64:
		return int(t), true, nil
	case float64:
		if t != math.Trunc(t) {
			return 0, true, validationError("metadata %s must be an integer", key)
		}
		return int(t), true, nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, true, validationError("metadata %s must be an integer", key)
		}
		return int(n), true, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, true, validationError("metadata %s must be an integer", key)
		}
		return n, true, nil
	default:
		return 0, true, validationError("metadata %s has unsupported type %T", key, v)
	}
}

func (c Contract) metaTaskID() (uint, error) {
	n, ok, err := c.metaInt(MetaTaskID)
	if err != nil {
		return 0, err
	}
	if !ok || n <= 0 {
		return 0, validationError("metadata %s is required", MetaTaskID)
	}
	return uint(n), nil
}

// metaDate 解析 "2006-01-02" 或 RFC3339，缺省时使用 contract 时间
func (c Contract) metaDate() (time.Time, error) {
	raw := c.metaString(MetaDate)
	if raw == "" {
		return Normalize(c.Timestamp), nil
	}
	if t, err := time.Parse(dayKeyFormat, raw); err == nil {
		return Normalize(t), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return Normalize(t), nil
	}
	return time.Time{}, validationError("metadata %s must be YYYY-MM-DD or RFC3339", MetaDate)
}

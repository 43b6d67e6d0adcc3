package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ethoslog/internal/config"
	"github.com/ethoslog/internal/db"
	"github.com/ethoslog/internal/progress"
	"github.com/ethoslog/internal/service"
	"gorm.io/gorm"
)

const (
	demoUser = "demo"
	demoDays = 21
)

// 测试数据生成器：为 demo 用户生成三周的打卡、训练与体重记录
func main() {
	// 初始化数据库
	cfg := config.Load()
	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatal("数据库初始化失败:", err)
	}

	catalog, err := config.LoadCatalog(cfg.AchievementsPath)
	if err != nil {
		log.Fatal("成就目录加载失败:", err)
	}

	fmt.Println("开始生成测试数据...")

	summary, err := seedDemoData(context.Background(), db.DB, catalog, time.Now().UTC())
	if err != nil {
		log.Fatal("生成测试数据失败:", err)
	}
	if summary == nil {
		fmt.Println("demo 用户已存在，跳过创建")
		return
	}

	fmt.Println("测试数据生成完成！")
	fmt.Printf("用户: %s (请求头 X-User-ID: %s)\n", demoUser, demoUser)
	fmt.Printf("任务: %d 个，打卡 %d 次，训练 %d 次\n", summary.Tasks, summary.Completions, summary.Workouts)
	fmt.Printf("等级: %d，总经验: %d\n", summary.Level, summary.TotalXP)
}

type seedSummary struct {
	Tasks       int
	Completions int
	Workouts    int
	Level       int
	TotalXP     int
}

type seedClock struct {
	now time.Time
}

func (c *seedClock) Now() time.Time {
	return c.now
}

var demoTasks = []service.TaskInput{
	{Name: "Morning Pushups", Description: "3 x 20", Pattern: "daily", Category: "push"},
	{Name: "Plank", Description: "2 分钟", Pattern: "weekdays", Category: "core"},
	{Name: "Pull-ups", Pattern: "custom", CustomDays: []int{1, 3, 5}, Category: "pull"},
	{Name: "Long Run", Description: "10 公里", Pattern: "weekly", Category: "legs"},
	{Name: "Stretching", Pattern: "weekends"},
}

var demoWorkouts = []service.WorkoutInput{
	{Name: "Bench Press", Category: "push", Sets: 5},
	{Name: "Deadlift", Category: "pull", Sets: 4, BonusXP: 10},
	{Name: "Squat", Category: "legs", Sets: 5},
	{Name: "Hanging Leg Raise", Category: "core", Sets: 3},
}

// seedDemoData 通过 service 层回放历史，XP 与成就都走协调器；demo 账本已存在时返回 nil
func seedDemoData(ctx context.Context, gdb *gorm.DB, catalog *progress.Catalog, now time.Time) (*seedSummary, error) {
	clock := &seedClock{now: progress.Normalize(now).AddDate(0, 0, -demoDays).Add(7 * time.Hour)}
	stack := service.NewStack(gdb, catalog, service.StackOptions{Now: clock.Now})

	existing, err := stack.Ledgers.Get(ctx, demoUser)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, nil
	}

	tasks := service.NewTaskService(stack)
	workouts := service.NewWorkoutService(stack)
	progressSvc := service.NewProgressService(stack)

	summary := &seedSummary{}
	created := make([]*progress.Task, 0, len(demoTasks))
	for _, input := range demoTasks {
		task, err := tasks.Create(ctx, demoUser, input)
		if err != nil {
			return nil, fmt.Errorf("create task %s: %w", input.Name, err)
		}
		created = append(created, task)
	}
	summary.Tasks = len(created)

	weight := 82.0
	for day := 0; day < demoDays; day++ {
		date := progress.Normalize(clock.now)
		clock.now = date.Add(20 * time.Hour)

		for i, task := range created {
			// 每隔几天漏掉一次，让连续天数有断点
			if (day+i)%5 == 4 || !progress.IsDue(*task, date) {
				continue
			}
			if _, err := tasks.Complete(ctx, demoUser, task.ID, date, ""); err != nil {
				return nil, fmt.Errorf("complete %s on %s: %w", task.Name, date.Format("2006-01-02"), err)
			}
			summary.Completions++
		}

		if day%3 == 0 {
			input := demoWorkouts[(day/3)%len(demoWorkouts)]
			input.PerformedAt = clock.now
			if _, _, err := workouts.Log(ctx, demoUser, input); err != nil {
				return nil, fmt.Errorf("log workout: %w", err)
			}
			summary.Workouts++
		}

		if day%7 == 0 {
			if _, _, err := progressSvc.LogBodyweight(ctx, demoUser, weight, progress.UnitKilograms, date); err != nil {
				return nil, fmt.Errorf("log bodyweight: %w", err)
			}
			weight -= 0.6
		}

		clock.now = date.AddDate(0, 0, 1).Add(7 * time.Hour)
	}

	view, err := progressSvc.Overview(ctx, demoUser)
	if err != nil {
		return nil, err
	}
	summary.Level = view.Level
	summary.TotalXP = view.TotalXP
	return summary, nil
}

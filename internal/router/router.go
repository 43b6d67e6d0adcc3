package router

import (
	"net/http"

	"github.com/ethoslog/internal/handler"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.Default()

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// 用户标识由上游鉴权层写入请求头
	apiGroup := r.Group("/api")
	apiGroup.Use(handler.RequireUser())
	{
		apiGroup.GET("/tasks", api.ListTasks)
		apiGroup.POST("/tasks", api.CreateTask)
		apiGroup.GET("/tasks/:id", api.GetTask)
		apiGroup.PUT("/tasks/:id", api.UpdateTask)
		apiGroup.DELETE("/tasks/:id", api.DeleteTask)
		apiGroup.POST("/tasks/:id/complete", api.CompleteTask)
		apiGroup.POST("/tasks/:id/uncomplete", api.UncompleteTask)

		apiGroup.GET("/workouts", api.ListWorkouts)
		apiGroup.POST("/workouts", api.LogWorkout)
		apiGroup.DELETE("/workouts/:id", api.DeleteWorkout)

		apiGroup.GET("/progress", api.GetProgress)
		apiGroup.GET("/progress/history", api.GetHistory)
		apiGroup.GET("/progress/bodyweight", api.ListBodyweight)
		apiGroup.POST("/progress/bodyweight", api.LogBodyweight)
		apiGroup.GET("/progress/events", api.ListEvents)
		apiGroup.POST("/progress/events", api.SubmitContract)
		apiGroup.POST("/progress/events/:token/reverse", api.ReverseEvent)

		apiGroup.GET("/achievements", api.ListAchievements)
		apiGroup.POST("/achievements/:id/claim", api.ClaimAchievement)
	}

	return r
}

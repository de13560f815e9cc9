package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spms-dev/spms/internal/handlers"
	"github.com/spms-dev/spms/internal/middleware"
	"github.com/spms-dev/spms/internal/types"
)

func NewRouter() *gin.Engine {
	r := gin.Default()

	// Add CORS middleware
	r.Use(cors.New(cors.Config{
		AllowOrigins:     types.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := r.Group("/api")
	{
		api.GET("/health", handlers.HealthCheck)
		api.GET("/ws/tasks", middleware.AuthMiddleware(), middleware.RequireStaff(), handlers.TaskFeed)
		auth := api.Group("/auth")
		{
			auth.POST("/register", handlers.CreateUser)
			auth.POST("/login", handlers.LoginUser)
			auth.POST("/logout", handlers.LogoutUser)
			auth.GET("/me", middleware.AuthMiddleware(), handlers.Me)
		}

		projects := api.Group("/projects", middleware.AuthMiddleware())
		{
			projects.POST("", handlers.CreateProject)
			projects.GET("", handlers.ListProjects)
			projects.PATCH("/:project_id", handlers.UpdateProject)
			projects.DELETE("/:project_id", handlers.DeleteProject)
		}

		tasks := api.Group("/tasks", middleware.AuthMiddleware())
		{
			tasks.POST("", handlers.CreateTask)
			tasks.GET("/pending", handlers.ListPendingTasks)
			tasks.POST("/:task_id/approve", handlers.ApproveTask)
			tasks.POST("/:task_id/reject", handlers.RejectTask)
			tasks.POST("/:task_id/cancel", handlers.CancelTask)
			tasks.POST("/:task_id/respond", handlers.RespondTask)
		}

		caretakers := api.Group("/caretakers", middleware.AuthMiddleware())
		{
			caretakers.GET("/check", handlers.CheckCaretakerStatus)
			caretakers.GET("/tasks/:caretaker_id", handlers.CaretakerTasks)
			caretakers.POST("", handlers.CreateCaretaker)
			caretakers.PATCH("/:id", handlers.UpdateCaretaker)
			caretakers.DELETE("/:id", handlers.DeleteCaretaker)
		}
	}

	return r
}

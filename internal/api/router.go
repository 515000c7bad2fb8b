package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"battery-dispatch/internal/api/handlers"
	"battery-dispatch/internal/api/middleware"
)

// NewRouter builds the gin router for the status API.
func NewRouter(provider handlers.SnapshotProvider, log *logrus.Logger, production bool) *gin.Engine {
	if log == nil {
		log = logrus.New()
	}
	if production {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.CORS())
	router.Use(middleware.Logger(log))
	router.Use(middleware.ErrorHandler())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	status := handlers.NewStatusHandler(provider)
	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", status.GetStatus)
		v1.GET("/plan/today", status.GetPlanToday)
		v1.GET("/plan/tomorrow", status.GetPlanTomorrow)
	}
	return router
}

package routes

import (
	"time"

	"options_watchlist_backend/controllers"
	"options_watchlist_backend/middleware"

	"github.com/gin-gonic/gin"
)

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, optionsController *controllers.OptionsController) {
	// Manual refresh hits the upstream API directly, so it gets a limiter
	refreshLimiter := middleware.NewRateLimiter(10, time.Minute)

	// API v1 group
	api := router.Group("/api/v1")
	{
		// Watchlist routes
		symbols := api.Group("/symbols")
		{
			symbols.GET("", optionsController.ListSymbols)
			symbols.POST("", optionsController.AddSymbol)
			symbols.DELETE("/:symbol", optionsController.RemoveSymbol)
		}

		// Option data routes
		options := api.Group("/options")
		{
			options.GET("/:symbol/latest", optionsController.GetLatestRanked)
			options.GET("/:symbol/history", optionsController.GetHistory)
			options.GET("/:symbol/performance", optionsController.GetPerformance)
		}

		// Refresh routes
		refresh := api.Group("/refresh")
		{
			refresh.GET("/status", optionsController.GetStatus)
			refresh.POST("/:symbol", refreshLimiter.Middleware(), optionsController.TriggerRefresh)
		}
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"message": "Options watchlist API is running",
		})
	})
}

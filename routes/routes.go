package routes

import (
	"market_reader_backend/controllers"
	"market_reader_backend/middleware"
	"market_reader_backend/models"
	"market_reader_backend/services/cache"
	"market_reader_backend/services/gateway"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, db *gorm.DB, sessions *gateway.SessionManager, cacheSvc *cache.Service) {
	// Initialize controllers, one per contract class
	stockController := controllers.NewContractController(db, sessions, cacheSvc, models.ContractStock)
	futureController := controllers.NewContractController(db, sessions, cacheSvc, models.ContractFuture)
	forexController := controllers.NewContractController(db, sessions, cacheSvc, models.ContractForex)
	indexController := controllers.NewContractController(db, sessions, cacheSvc, models.ContractIndex)
	optionController := controllers.NewOptionController(db, cacheSvc)

	// API v1 group
	api := router.Group("/api/v1")
	api.Use(middleware.NewRateLimiter().Middleware())
	{
		// Stock routes
		stocks := api.Group("/stocks")
		{
			stocks.GET("", stockController.List)
			stocks.POST("", stockController.Create)
			stocks.DELETE("/:symbol", stockController.Delete)
			stocks.GET("/:symbol/bars", stockController.Bars)
		}

		// Option routes (read-only: contracts come from discovery)
		optionRoutes := api.Group("/options")
		{
			optionRoutes.GET("/:symbol", optionController.Expirations)
			optionRoutes.GET("/:symbol/:expiration", optionController.Bars)
			optionRoutes.GET("/:symbol/:expiration/strikes", optionController.Strikes)
		}

		// Future routes
		futures := api.Group("/futures")
		{
			futures.GET("", futureController.List)
			futures.POST("", futureController.Create)
			futures.DELETE("/:symbol", futureController.Delete)
			futures.GET("/:symbol/bars", futureController.Bars)
		}

		// Forex routes
		forex := api.Group("/forex")
		{
			forex.GET("", forexController.List)
			forex.POST("", forexController.Create)
			forex.DELETE("/:symbol", forexController.Delete)
			forex.GET("/:symbol/bars", forexController.Bars)
		}

		// Index routes
		indices := api.Group("/indices")
		{
			indices.GET("", indexController.List)
			indices.POST("", indexController.Create)
			indices.DELETE("/:symbol", indexController.Delete)
			indices.GET("/:symbol/bars", indexController.Bars)
		}
	}
}

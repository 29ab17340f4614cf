package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "X-User-ID"},
	}))

	router.GET("/health", handler.Health)

	api := router.Group("/api")
	{
		api.POST("/filters", handler.CreateFilter)
		api.GET("/filters", handler.ListFilters)
		api.GET("/filters/:id", handler.GetFilter)
		api.PUT("/filters/:id", handler.UpdateFilter)
		api.DELETE("/filters/:id", handler.DeleteFilter)
		api.POST("/filters/:id/scan", handler.TriggerScan)
		api.GET("/filters/:id/listings", handler.ListFilterListings)
		api.GET("/filters/:id/scans", handler.ListFilterScans)

		api.POST("/quick-search", handler.QuickSearch)

		api.GET("/notifications", handler.ListNotifications)
		api.POST("/notifications/:id/read", handler.MarkNotificationRead)

		api.GET("/favorites", handler.ListFavorites)
		api.POST("/favorites/:listing_id", handler.AddFavorite)
		api.DELETE("/favorites/:listing_id", handler.RemoveFavorite)
	}
}

package routes

import (
	"github.com/gin-gonic/gin"

	"cartsync/controllers"
	"cartsync/middleware"
)

func SetupRoutes(router *gin.Engine) {
	cartCtrl := controllers.NewCartController()

	router.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	cart := router.Group("/api/cart")
	cart.Use(middleware.AuthMiddleware())
	{
		cart.GET("", cartCtrl.GetCart)
		cart.POST("/items", cartCtrl.AddItem)
		cart.PUT("/items/:productId", cartCtrl.UpdateItem)
		cart.DELETE("/items/:productId", cartCtrl.RemoveItem)
		cart.DELETE("", cartCtrl.ClearCart)
		cart.GET("/count", cartCtrl.Count)
		cart.POST("/merge", cartCtrl.MergeCart)
		cart.POST("/sync", cartCtrl.SyncCart)
	}
}

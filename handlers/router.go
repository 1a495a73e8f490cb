// handlers/router.go
package handlers

import (
	"net/http"

	"github.com/gewnthar/favdemand/services"
	"github.com/gewnthar/favdemand/utils"
	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	Products       *services.ProductService
	Analytics      *services.AnalyticsService
	Log            *utils.Logger
	CORSOrigins    []string
	AdminRateLimit float64
	AdminRateBurst int
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(cfg.Log), CORS(cfg.CORSOrigins))

	products := NewProductHandler(cfg.Products)
	analytics := NewAnalyticsHandler(cfg.Analytics)
	admin := NewAdminHandler(cfg.Products, cfg.Log)

	router.GET("/health", func(c *gin.Context) {
		st := cfg.Products.Status()
		respondWithJSON(c, http.StatusOK, gin.H{"status": "ok", "cache_ready": st.CacheReady, "state": st.State})
	})

	api := router.Group("/api")
	api.GET("/status", func(c *gin.Context) {
		respondWithJSON(c, http.StatusOK, cfg.Products.Status())
	})

	p := api.Group("/products")
	{
		p.GET("", products.List)
		p.GET("/categories", products.Categories)
		p.GET("/brands", products.Brands)
		p.GET("/:id", products.Get)
	}

	a := api.Group("/analytics")
	{
		a.GET("/demand/top", analytics.TopDemand)
		a.GET("/demand/trends", analytics.Trends)
		a.GET("/stock/out-of-stock", analytics.OutOfStock)
		a.GET("/timeseries", analytics.TimeSeries)
		a.GET("/pricing-metrics", analytics.PricingMetrics)
		a.GET("/price-comparison", analytics.PriceComparison)
	}

	cache := api.Group("/cache")
	{
		cache.GET("/stats", admin.Stats)
		cache.GET("/products", products.List)
		cache.POST("/products", admin.AddProduct)
		cache.PUT("/products/:id", admin.UpdateProduct)
		cache.DELETE("/products/:id", admin.DeleteProduct)
		cache.DELETE("/products", admin.DeleteProducts)

		limited := cache.Group("", RateLimit(cfg.AdminRateLimit, cfg.AdminRateBurst))
		limited.POST("/clear", admin.Clear)
		limited.POST("/reload", admin.Reload)
	}

	return router
}

// handlers/analytics_handler.go
package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gewnthar/favdemand/models"
	"github.com/gewnthar/favdemand/services"
	"github.com/gin-gonic/gin"
)

const maxAnalyticsLimit = 1000

type AnalyticsHandler struct {
	analytics *services.AnalyticsService
}

func NewAnalyticsHandler(analytics *services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// TopDemand handles GET /api/analytics/demand/top?limit=.
func (h *AnalyticsHandler) TopDemand(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	limit, err := queryInt(c, "limit", services.DefaultTopLimit, 1, maxAnalyticsLimit)
	if err != nil {
		respondWithError(c, err)
		return
	}
	respondWithJSON(c, http.StatusOK, h.analytics.TopByDemand(filter, limit))
}

// Trends handles GET /api/analytics/demand/trends?group_by=category|brand|period.
func (h *AnalyticsHandler) Trends(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	respondWithJSON(c, http.StatusOK, h.analytics.Trends(filter, c.DefaultQuery("group_by", services.GroupByCategory)))
}

// TimeSeries handles GET /api/analytics/timeseries?period=day|week|month&group_by=category|brand.
func (h *AnalyticsHandler) TimeSeries(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	period := c.DefaultQuery("period", services.PeriodMonth)
	respondWithJSON(c, http.StatusOK, h.analytics.TimeSeries(filter, period, c.Query("group_by")))
}

// OutOfStock handles GET /api/analytics/stock/out-of-stock?min_days=&limit=.
func (h *AnalyticsHandler) OutOfStock(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	minDays, err := queryInt(c, "min_days", services.DefaultMinStockoutDays, 0, 1<<20)
	if err != nil {
		respondWithError(c, err)
		return
	}
	limit, err := queryInt(c, "limit", services.DefaultOutOfStockLimit, 1, maxAnalyticsLimit)
	if err != nil {
		respondWithError(c, err)
		return
	}
	respondWithJSON(c, http.StatusOK, h.analytics.OutOfStock(filter, minDays, limit))
}

// PricingMetrics handles GET /api/analytics/pricing-metrics?min_days_out_of_stock=&limit=.
func (h *AnalyticsHandler) PricingMetrics(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	minDays, err := queryInt(c, "min_days_out_of_stock", services.DefaultMinStockoutDays, 0, 1<<20)
	if err != nil {
		respondWithError(c, err)
		return
	}
	limit, err := queryInt(c, "limit", services.DefaultPricingLimit, 1, maxAnalyticsLimit)
	if err != nil {
		respondWithError(c, err)
		return
	}
	respondWithJSON(c, http.StatusOK, h.analytics.PricingMetrics(filter, minDays, limit))
}

// PriceComparison handles GET /api/analytics/price-comparison?min_favorites=&limit=.
func (h *AnalyticsHandler) PriceComparison(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	var minFavorites int64
	if v := c.Query("min_favorites"); v != "" {
		minFavorites, err = strconv.ParseInt(v, 10, 64)
		if err != nil || minFavorites < 0 {
			respondWithError(c, fmt.Errorf("%w: min_favorites must be a non-negative integer", models.ErrInvalidArgument))
			return
		}
	}
	limit, err := queryInt(c, "limit", services.DefaultPricingLimit, 1, maxAnalyticsLimit)
	if err != nil {
		respondWithError(c, err)
		return
	}
	respondWithJSON(c, http.StatusOK, h.analytics.PriceComparison(filter, minFavorites, limit))
}

// models/analytics.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Demand levels assigned from a quantile split of the current result set.
const (
	DemandHigh   = "high"
	DemandMedium = "medium"
	DemandLow    = "low"
)

type DemandMetric struct {
	ProductID      string     `json:"product_id"`
	ProductName    string     `json:"product_name"`
	Brand          string     `json:"brand,omitempty"`
	CategoryLevel1 string     `json:"category_level_1,omitempty"`
	FavoritesCount int64      `json:"favorites_count"`
	PeriodStart    *time.Time `json:"period_start,omitempty"`
	PeriodEnd      *time.Time `json:"period_end,omitempty"`
	Rank           int        `json:"rank"`
}

type TrendPoint struct {
	Period                 string  `json:"period"` // YYYY-MM or "Unknown"
	Category               string  `json:"category,omitempty"`
	Brand                  string  `json:"brand,omitempty"`
	TotalFavorites         int64   `json:"total_favorites"`
	UniqueProducts         int     `json:"unique_products"`
	AvgFavoritesPerProduct float64 `json:"avg_favorites_per_product"`
}

type TimeSeriesPoint struct {
	Date     time.Time `json:"date"`
	Value    int64     `json:"value"`
	Category string    `json:"category,omitempty"`
	Brand    string    `json:"brand,omitempty"`
}

type OutOfStockProduct struct {
	ProductID      string    `json:"product_id"`
	ProductName    string    `json:"product_name"`
	Brand          string    `json:"brand,omitempty"`
	CategoryLevel1 string    `json:"category_level_1,omitempty"`
	LastInStock    time.Time `json:"last_in_stock"`
	DaysOutOfStock int       `json:"days_out_of_stock"`
	FavoritesCount int64     `json:"favorites_count"`
	PriorityScore  float64   `json:"priority_score"` // 0-100, relative to this result set
}

type PricingMetric struct {
	ProductID      string  `json:"product_id"`
	ProductName    string  `json:"product_name"`
	Brand          string  `json:"brand,omitempty"`
	CategoryLevel1 string  `json:"category_level_1,omitempty"`
	DemandLevel    string  `json:"demand_level"`
	FavoritesCount int64   `json:"favorites_count"`
	DaysOutOfStock int     `json:"days_out_of_stock"`
	PriorityScore  float64 `json:"priority_score"`
	Recommendation string  `json:"recommendation"`
}

type PriceComparison struct {
	ProductID          string            `json:"product_id"`
	ProductName        string            `json:"product_name"`
	Brand              string            `json:"brand,omitempty"`
	CategoryLevel1     string            `json:"category_level_1,omitempty"`
	FavoritesCount     int64             `json:"favorites_count"`
	DemandLevel        string            `json:"demand_level"`
	OurPrice           decimal.Decimal   `json:"our_price"`
	CompetitorPrices   []decimal.Decimal `json:"competitor_prices"`
	AvgCompetitorPrice decimal.Decimal   `json:"avg_competitor_price"`
	MinCompetitorPrice decimal.Decimal   `json:"min_competitor_price"`
	MaxCompetitorPrice decimal.Decimal   `json:"max_competitor_price"`
	PriceDiffPercent   float64           `json:"price_difference_percent"`
	Recommendation     string            `json:"recommendation"`
	Score              float64           `json:"score"`
}

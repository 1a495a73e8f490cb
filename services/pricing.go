// services/pricing.go
package services

import (
	"sort"

	"github.com/gewnthar/favdemand/models"
)

// Restock recommendations, from most to least urgent.
const (
	RecommendUrgent = "Critical: high demand and out of stock for over a month. Restock urgently."
	RecommendHigh   = "High priority: high demand, restock soon."
	RecommendMedium = "Medium priority: out of stock for a long time, consider restocking."
	RecommendLow    = "Low priority: keep monitoring."
)

// PricingMetrics groups the filtered table per product, keeps products out of stock for at least
// minDays, tiers them by demand and scores them for restocking.
func (s *AnalyticsService) PricingMetrics(filter models.ProductFilter, minDays, limit int) []models.PricingMetric {
	return pricingMetrics(s.rows(), filter, minDays, limit)
}

// quantile uses linear interpolation between closest ranks over sorted values.
func quantile(sorted []int64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo >= len(sorted)-1 {
		return float64(sorted[len(sorted)-1])
	}
	frac := pos - float64(lo)
	return float64(sorted[lo]) + frac*float64(sorted[lo+1]-sorted[lo])
}

// demandTiers returns a classifier splitting favorites at the 75th and 25th percentiles of values.
func demandTiers(values []int64) func(int64) string {
	if len(values) == 0 {
		return func(int64) string { return models.DemandLow }
	}
	sorted := append([]int64(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	p75 := quantile(sorted, 0.75)
	p25 := quantile(sorted, 0.25)
	return func(v int64) string {
		switch f := float64(v); {
		case f >= p75:
			return models.DemandHigh
		case f >= p25:
			return models.DemandMedium
		default:
			return models.DemandLow
		}
	}
}

func recommendation(level string, days int) string {
	switch {
	case level == models.DemandHigh && days > 30:
		return RecommendUrgent
	case level == models.DemandHigh:
		return RecommendHigh
	case days > 60:
		return RecommendMedium
	default:
		return RecommendLow
	}
}

// topGroups keeps the n groups with the most favorites (earlier groups win ties), in group order.
func topGroups(groups []*productGroup, n int) []*productGroup {
	if len(groups) <= n {
		return groups
	}
	idx := make([]int, len(groups))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return groups[idx[a]].favorites > groups[idx[b]].favorites })
	idx = idx[:n]
	sort.Ints(idx)
	out := make([]*productGroup, n)
	for i, j := range idx {
		out[i] = groups[j]
	}
	return out
}

func pricingMetrics(rows []models.ProductRecord, filter models.ProductFilter, minDays, limit int) []models.PricingMetric {
	if limit <= 0 {
		limit = DefaultPricingLimit
	}
	var groups []*productGroup
	for _, g := range groupByID(filterRows(rows, filter)) {
		if g.days != nil && *g.days >= minDays {
			groups = append(groups, g)
		}
	}
	groups = topGroups(groups, 2*limit)

	favorites := make([]int64, len(groups))
	var maxFav int64
	var maxDays int
	for i, g := range groups {
		favorites[i] = g.favorites
		if g.favorites > maxFav {
			maxFav = g.favorites
		}
		if *g.days > maxDays {
			maxDays = *g.days
		}
	}
	tier := demandTiers(favorites)

	out := make([]models.PricingMetric, 0, len(groups))
	for _, g := range groups {
		level := tier(g.favorites)
		out = append(out, models.PricingMetric{
			ProductID:      g.id,
			ProductName:    g.name,
			Brand:          g.brand,
			CategoryLevel1: g.category,
			DemandLevel:    level,
			FavoritesCount: g.favorites,
			DaysOutOfStock: *g.days,
			PriorityScore:  priorityScore(g.favorites, maxFav, *g.days, maxDays),
			Recommendation: recommendation(level, *g.days),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PriorityScore > out[j].PriorityScore })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

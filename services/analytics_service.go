// services/analytics_service.go
package services

import (
	"math"
	"sort"
	"time"

	"github.com/gewnthar/favdemand/models"
	"github.com/gewnthar/favdemand/utils"
)

const (
	DefaultTopLimit        = 10
	DefaultOutOfStockLimit = 100
	DefaultPricingLimit    = 50
	DefaultMinStockoutDays = 15
	UnknownPeriod          = "Unknown"
)

// Grouping dimensions accepted by Trends and TimeSeries.
const (
	GroupByCategory = "category"
	GroupByBrand    = "brand"
	GroupByPeriod   = "period"
)

// Time-series granularities.
const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

// AnalyticsService answers aggregate queries over a snapshot of the loader's table.
// It never modifies the table.
type AnalyticsService struct {
	loader *Loader
	prices CompetitorPriceSource
	log    *utils.Logger
}

func NewAnalyticsService(loader *Loader, prices CompetitorPriceSource, log *utils.Logger) *AnalyticsService {
	if prices == nil {
		prices = SyntheticPriceSource{}
	}
	return &AnalyticsService{loader: loader, prices: prices, log: log.With("component", "analytics")}
}

func (s *AnalyticsService) rows() []models.ProductRecord {
	return s.loader.Snapshot().Rows
}

// TopByDemand ranks products by favorites summed across periods.
func (s *AnalyticsService) TopByDemand(filter models.ProductFilter, limit int) []models.DemandMetric {
	return topByDemand(s.rows(), filter, limit)
}

// Trends buckets favorites by period_start month crossed with groupBy.
func (s *AnalyticsService) Trends(filter models.ProductFilter, groupBy string) []models.TrendPoint {
	return trends(s.rows(), filter, groupBy)
}

// TimeSeries sums favorites per day, week or month of period_start, optionally per category or brand.
func (s *AnalyticsService) TimeSeries(filter models.ProductFilter, period, groupBy string) []models.TimeSeriesPoint {
	return timeSeries(s.rows(), filter, period, groupBy)
}

// OutOfStock ranks products missing from stock for at least minDays by a relative priority score.
func (s *AnalyticsService) OutOfStock(filter models.ProductFilter, minDays, limit int) []models.OutOfStockProduct {
	return outOfStock(s.rows(), filter, minDays, limit, time.Now())
}

// productGroup is the per-id aggregate shared by the ranking queries.
type productGroup struct {
	id          string
	name        string
	brand       string
	category    string
	favorites   int64
	periodStart *time.Time
	periodEnd   *time.Time
	lastInStock *time.Time
	days        *int
}

func filterRows(rows []models.ProductRecord, f models.ProductFilter) []*models.ProductRecord {
	out := make([]*models.ProductRecord, 0, len(rows))
	for i := range rows {
		if f.Match(&rows[i]) {
			out = append(out, &rows[i])
		}
	}
	return out
}

// groupByID aggregates rows per id in order of first appearance. Display fields take the
// first non-empty value; dates and days keep their min or max, skipping nulls.
func groupByID(rows []*models.ProductRecord) []*productGroup {
	index := make(map[string]*productGroup)
	var groups []*productGroup
	for _, r := range rows {
		g, ok := index[r.ID]
		if !ok {
			g = &productGroup{id: r.ID}
			index[r.ID] = g
			groups = append(groups, g)
		}
		if g.name == "" {
			g.name = r.Name
		}
		if g.brand == "" {
			g.brand = r.Brand
		}
		if g.category == "" {
			g.category = r.CategoryLevel1
		}
		g.favorites += r.FavoritesCount
		g.periodStart = minTime(g.periodStart, r.PeriodStart)
		g.periodEnd = maxTime(g.periodEnd, r.PeriodEnd)
		g.lastInStock = minTime(g.lastInStock, r.LastInStock)
		if r.DaysOutOfStock != nil && (g.days == nil || *r.DaysOutOfStock > *g.days) {
			d := *r.DaysOutOfStock
			g.days = &d
		}
	}
	return groups
}

func minTime(cur, v *time.Time) *time.Time {
	if v == nil {
		return cur
	}
	if cur == nil || v.Before(*cur) {
		t := *v
		return &t
	}
	return cur
}

func maxTime(cur, v *time.Time) *time.Time {
	if v == nil {
		return cur
	}
	if cur == nil || v.After(*cur) {
		t := *v
		return &t
	}
	return cur
}

// topFavoriteRows keeps the n rows with the most favorites (earlier rows win ties) and
// returns them in their original table order.
func topFavoriteRows(rows []*models.ProductRecord, n int) []*models.ProductRecord {
	if len(rows) <= n {
		return rows
	}
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return rows[idx[a]].FavoritesCount > rows[idx[b]].FavoritesCount })
	idx = idx[:n]
	sort.Ints(idx)
	out := make([]*models.ProductRecord, n)
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}

// priorityScore blends demand (70%) and stock-out age (30%), each normalized by the maximum
// of the current result set. A zero maximum contributes nothing.
func priorityScore(favorites, maxFavorites int64, days, maxDays int) float64 {
	var score float64
	if maxFavorites > 0 {
		score += 70 * float64(favorites) / float64(maxFavorites)
	}
	if maxDays > 0 {
		score += 30 * float64(days) / float64(maxDays)
	}
	return math.Max(0, math.Min(100, score))
}

func topByDemand(rows []models.ProductRecord, filter models.ProductFilter, limit int) []models.DemandMetric {
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	groups := groupByID(filterRows(rows, filter))
	// Equal totals keep first-appearance order, not id order.
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].favorites > groups[j].favorites })
	if len(groups) > limit {
		groups = groups[:limit]
	}

	out := make([]models.DemandMetric, 0, len(groups))
	for i, g := range groups {
		out = append(out, models.DemandMetric{
			ProductID:      g.id,
			ProductName:    g.name,
			Brand:          g.brand,
			CategoryLevel1: g.category,
			FavoritesCount: g.favorites,
			PeriodStart:    g.periodStart,
			PeriodEnd:      g.periodEnd,
			Rank:           i + 1,
		})
	}
	return out
}

func trends(rows []models.ProductRecord, filter models.ProductFilter, groupBy string) []models.TrendPoint {
	if groupBy != GroupByCategory && groupBy != GroupByBrand {
		groupBy = GroupByPeriod
	}

	type bucketKey struct{ group, period string }
	type bucket struct {
		key       bucketKey
		favorites int64
		ids       map[string]struct{}
	}
	buckets := make(map[bucketKey]*bucket)
	var order []*bucket

	for _, r := range filterRows(rows, filter) {
		var group string
		switch groupBy {
		case GroupByCategory:
			group = r.CategoryLevel1
		case GroupByBrand:
			group = r.Brand
		default:
			if r.PeriodStart != nil {
				group = r.PeriodStart.Format("2006-01-02")
			}
		}
		// Rows without a value for the grouping column form no bucket.
		if group == "" {
			continue
		}
		label := UnknownPeriod
		if r.PeriodStart != nil {
			label = r.PeriodStart.Format("2006-01")
		}

		k := bucketKey{group: group, period: label}
		b, ok := buckets[k]
		if !ok {
			b = &bucket{key: k, ids: make(map[string]struct{})}
			buckets[k] = b
			order = append(order, b)
		}
		b.favorites += r.FavoritesCount
		b.ids[r.ID] = struct{}{}
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].key.period != order[j].key.period {
			return order[i].key.period < order[j].key.period
		}
		return order[i].key.group < order[j].key.group
	})

	out := make([]models.TrendPoint, 0, len(order))
	for _, b := range order {
		p := models.TrendPoint{
			Period:         b.key.period,
			TotalFavorites: b.favorites,
			UniqueProducts: len(b.ids),
		}
		if p.UniqueProducts > 0 {
			p.AvgFavoritesPerProduct = float64(p.TotalFavorites) / float64(p.UniqueProducts)
		}
		switch groupBy {
		case GroupByCategory:
			p.Category = b.key.group
		case GroupByBrand:
			p.Brand = b.key.group
		}
		out = append(out, p)
	}
	return out
}

// bucketDate maps a date to the representative date of its bucket: the day itself, the
// Monday of its ISO week, or the first of its month.
func bucketDate(t time.Time, period string) time.Time {
	d := models.DateOnly(t)
	switch period {
	case PeriodDay:
		return d
	case PeriodWeek:
		offset := (int(d.Weekday()) + 6) % 7
		return d.AddDate(0, 0, -offset)
	default:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
}

func timeSeries(rows []models.ProductRecord, filter models.ProductFilter, period, groupBy string) []models.TimeSeriesPoint {
	if period != PeriodDay && period != PeriodWeek {
		period = PeriodMonth
	}
	if groupBy != GroupByCategory && groupBy != GroupByBrand {
		groupBy = ""
	}

	type pointKey struct {
		date  time.Time
		group string
	}
	sums := make(map[pointKey]int64)
	var keys []pointKey

	for _, r := range filterRows(rows, filter) {
		if r.PeriodStart == nil {
			continue
		}
		var group string
		switch groupBy {
		case GroupByCategory:
			group = r.CategoryLevel1
		case GroupByBrand:
			group = r.Brand
		}
		if groupBy != "" && group == "" {
			continue
		}
		k := pointKey{date: bucketDate(*r.PeriodStart, period), group: group}
		if _, ok := sums[k]; !ok {
			keys = append(keys, k)
		}
		sums[k] += r.FavoritesCount
	}

	sort.SliceStable(keys, func(i, j int) bool {
		if !keys[i].date.Equal(keys[j].date) {
			return keys[i].date.Before(keys[j].date)
		}
		return keys[i].group < keys[j].group
	})

	out := make([]models.TimeSeriesPoint, 0, len(keys))
	for _, k := range keys {
		p := models.TimeSeriesPoint{Date: k.date, Value: sums[k]}
		switch groupBy {
		case GroupByCategory:
			p.Category = k.group
		case GroupByBrand:
			p.Brand = k.group
		}
		out = append(out, p)
	}
	return out
}

func outOfStock(rows []models.ProductRecord, filter models.ProductFilter, minDays, limit int, now time.Time) []models.OutOfStockProduct {
	if limit <= 0 {
		limit = DefaultOutOfStockLimit
	}
	if filter.OutOfStockDays == nil || *filter.OutOfStockDays < minDays {
		filter.OutOfStockDays = &minDays
	}
	matched := topFavoriteRows(filterRows(rows, filter), 3*limit)
	groups := groupByID(matched)

	var maxFav int64
	var maxDays int
	for _, g := range groups {
		if g.favorites > maxFav {
			maxFav = g.favorites
		}
		if g.days != nil && *g.days > maxDays {
			maxDays = *g.days
		}
	}

	out := make([]models.OutOfStockProduct, 0, len(groups))
	for _, g := range groups {
		days := 0
		if g.days != nil {
			days = *g.days
		}
		last := models.DateOnly(now)
		if g.lastInStock != nil {
			last = *g.lastInStock
		}
		out = append(out, models.OutOfStockProduct{
			ProductID:      g.id,
			ProductName:    g.name,
			Brand:          g.brand,
			CategoryLevel1: g.category,
			LastInStock:    last,
			DaysOutOfStock: days,
			FavoritesCount: g.favorites,
			PriorityScore:  priorityScore(g.favorites, maxFav, days, maxDays),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PriorityScore > out[j].PriorityScore })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// services/price_comparison.go
package services

import (
	"hash/fnv"
	"math"
	"math/rand"
	"sort"

	"github.com/gewnthar/favdemand/models"
	"github.com/shopspring/decimal"
)

// Price comparison recommendations keyed by how far our price sits from the competitor average.
const (
	PriceWellAbove   = "Price is well above competitors: consider lowering it."
	PriceAbove       = "Price is slightly above competitors: monitor conversion."
	PriceWellBelow   = "Price is well below competitors: there is room to raise it."
	PriceBelow       = "Price is slightly below competitors: consider a small increase."
	PriceCompetitive = "Price is in line with competitors."
)

// DefaultMinFavorite is the summed-favorites floor for price comparison.
const DefaultMinFavorite = 0

// ourMarkup prices our product over the competitor average when we have no price on record.
var ourMarkup = decimal.RequireFromString("1.05")

// CompetitorPriceSource supplies prices for one product. ourPrice is nil when we have no price
// of our own on record; an empty competitors slice means the product cannot be compared.
type CompetitorPriceSource interface {
	Prices(productID string) (ourPrice *decimal.Decimal, competitors []decimal.Decimal)
}

// SyntheticPriceSource fabricates stable competitor prices from the product id. It stands in
// for a real price feed; the same id always yields the same prices.
type SyntheticPriceSource struct{}

func (SyntheticPriceSource) Prices(productID string) (*decimal.Decimal, []decimal.Decimal) {
	h := fnv.New64a()
	h.Write([]byte(productID))
	rnd := rand.New(rand.NewSource(int64(h.Sum64())))

	base := 500 + rnd.Float64()*19500
	n := 3 + rnd.Intn(3)
	prices := make([]decimal.Decimal, n)
	for i := range prices {
		spread := 0.8 + rnd.Float64()*0.4
		prices[i] = decimal.NewFromFloat(base * spread).Round(2)
	}
	return nil, prices
}

// PriceComparison compares our price with competitor prices for products with at least
// minFavorites summed favorites, ranked by demand tier weight and size of the gap.
func (s *AnalyticsService) PriceComparison(filter models.ProductFilter, minFavorites int64, limit int) []models.PriceComparison {
	return priceComparison(s.rows(), filter, minFavorites, limit, s.prices)
}

func priceRecommendation(pct float64) string {
	switch {
	case pct > 15:
		return PriceWellAbove
	case pct > 5:
		return PriceAbove
	case pct < -15:
		return PriceWellBelow
	case pct < -5:
		return PriceBelow
	default:
		return PriceCompetitive
	}
}

func tierWeight(level string) float64 {
	switch level {
	case models.DemandHigh:
		return 3
	case models.DemandMedium:
		return 2
	default:
		return 1
	}
}

func priceComparison(rows []models.ProductRecord, filter models.ProductFilter, minFavorites int64, limit int, prices CompetitorPriceSource) []models.PriceComparison {
	if limit <= 0 {
		limit = DefaultPricingLimit
	}
	var groups []*productGroup
	for _, g := range groupByID(filterRows(rows, filter)) {
		if g.favorites >= minFavorites {
			groups = append(groups, g)
		}
	}
	groups = topGroups(groups, 2*limit)

	favorites := make([]int64, len(groups))
	for i, g := range groups {
		favorites[i] = g.favorites
	}
	tier := demandTiers(favorites)
	hundred := decimal.NewFromInt(100)

	out := make([]models.PriceComparison, 0, len(groups))
	for _, g := range groups {
		our, competitors := prices.Prices(g.id)
		if len(competitors) == 0 {
			continue
		}
		sum, lo, hi := decimal.Zero, competitors[0], competitors[0]
		for _, p := range competitors {
			sum = sum.Add(p)
			lo = decimal.Min(lo, p)
			hi = decimal.Max(hi, p)
		}
		avg := sum.Div(decimal.NewFromInt(int64(len(competitors)))).Round(2)
		ourPrice := avg.Mul(ourMarkup).Round(2)
		if our != nil {
			ourPrice = *our
		}

		var pct float64
		if !avg.IsZero() {
			pct = ourPrice.Sub(avg).Div(avg).Mul(hundred).Round(2).InexactFloat64()
		}
		level := tier(g.favorites)
		out = append(out, models.PriceComparison{
			ProductID:          g.id,
			ProductName:        g.name,
			Brand:              g.brand,
			CategoryLevel1:     g.category,
			FavoritesCount:     g.favorites,
			DemandLevel:        level,
			OurPrice:           ourPrice,
			CompetitorPrices:   competitors,
			AvgCompetitorPrice: avg,
			MinCompetitorPrice: lo,
			MaxCompetitorPrice: hi,
			PriceDiffPercent:   pct,
			Recommendation:     priceRecommendation(pct),
			Score:              tierWeight(level)*10 + math.Abs(pct),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

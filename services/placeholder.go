// services/placeholder.go
package services

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/gewnthar/favdemand/models"
	"github.com/gewnthar/favdemand/utils"
)

// PlaceholderFile is the pseudo filename reported in file metadata while placeholder rows are served.
const PlaceholderFile = "mock_data"

var (
	placeholderCategories = []string{
		"Красота и здоровье",
		"Электроника",
		"Одежда и обувь",
		"Дом и сад",
		"Спорт и отдых",
		"Книги",
		"Игрушки",
		"Автотовары",
	}
	placeholderBrands = []string{
		"OZON", "Apple", "Samsung", "Nike", "Adidas", "Sony", "LG", "Xiaomi",
		"Huawei", "Canon", "Nikon", "Bosch", "Philips", "Panasonic",
	}
)

// PlaceholderGenerator builds the synthetic table served before real data is available.
// Values are random but the shape is fixed by row index: the first 70% of rows have been out
// of stock 15..100 days and the rest 0..14; the first 20% are high demand, the next 30%
// medium and the remaining half low.
type PlaceholderGenerator struct {
	rnd *rand.Rand
	now func() time.Time
}

// NewPlaceholderGenerator uses rnd for every random draw. Pass a seeded source for repeatable output.
func NewPlaceholderGenerator(rnd *rand.Rand, now func() time.Time) *PlaceholderGenerator {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if now == nil {
		now = time.Now
	}
	return &PlaceholderGenerator{rnd: rnd, now: now}
}

// between returns a uniform integer in [lo, hi].
func (g *PlaceholderGenerator) between(lo, hi int) int {
	return lo + g.rnd.Intn(hi-lo+1)
}

// Generate returns count synthetic rows. Not safe for concurrent use.
func (g *PlaceholderGenerator) Generate(count int) []models.ProductRecord {
	today := models.DateOnly(g.now())
	periodStart := today.AddDate(0, 0, -30)
	periodEnd := today

	staleCut := int(float64(count) * 0.7)
	highCut := int(float64(count) * 0.2)
	mediumCut := int(float64(count) * 0.5)

	rows := make([]models.ProductRecord, 0, count)
	for i := 0; i < count; i++ {
		category := placeholderCategories[g.rnd.Intn(len(placeholderCategories))]
		brand := placeholderBrands[g.rnd.Intn(len(placeholderBrands))]

		var daysOut int
		if i < staleCut {
			daysOut = g.between(15, 100)
		} else {
			daysOut = g.between(0, 14)
		}

		var favorites int
		switch {
		case i < highCut:
			favorites = g.between(10000, 50000)
		case i < mediumCut:
			favorites = g.between(5000, 10000)
		default:
			favorites = g.between(100, 5000)
		}

		name := fmt.Sprintf("Товар %d - %s %s", i+1, brand, category)
		link := fmt.Sprintf("https://www.ozon.ru/product/mock_%06d", i)
		lastInStock := today.AddDate(0, 0, -daysOut)
		ps, pe := periodStart, periodEnd
		rows = append(rows, models.ProductRecord{
			ID:             utils.ProductID(name, brand, link),
			Name:           name,
			Brand:          brand,
			Link:           link,
			CategoryLevel1: category,
			FavoritesCount: int64(favorites),
			LastInStock:    &lastInStock,
			PeriodStart:    &ps,
			PeriodEnd:      &pe,
		})
	}
	return WithDaysOutOfStock(rows, g.now())
}

// WithDaysOutOfStock returns a copy of rows with days_out_of_stock recomputed against now.
// The input slice is not modified, so it can still be held by concurrent readers.
func WithDaysOutOfStock(rows []models.ProductRecord, now time.Time) []models.ProductRecord {
	out := make([]models.ProductRecord, len(rows))
	copy(out, rows)
	for i := range out {
		out[i].DaysOutOfStock = models.DaysOutOfStock(out[i].LastInStock, now)
	}
	return out
}

// handlers/filters.go
package handlers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gewnthar/favdemand/models"
	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

// parseFilter reads the shared filter set from the query string. "category" is accepted as
// an alias for category_level_1.
func parseFilter(c *gin.Context) (models.ProductFilter, error) {
	f := models.ProductFilter{
		CategoryLevel1: strings.TrimSpace(c.Query("category_level_1")),
		CategoryLevel2: strings.TrimSpace(c.Query("category_level_2")),
		CategoryLevel3: strings.TrimSpace(c.Query("category_level_3")),
		CategoryLevel4: strings.TrimSpace(c.Query("category_level_4")),
		Brand:          strings.TrimSpace(c.Query("brand")),
		Search:         strings.TrimSpace(c.Query("search")),
	}
	if f.CategoryLevel1 == "" {
		f.CategoryLevel1 = strings.TrimSpace(c.Query("category"))
	}

	if v := c.Query("min_favorites_count"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return f, fmt.Errorf("%w: min_favorites_count must be a non-negative integer", models.ErrInvalidArgument)
		}
		f.MinFavorites = &n
	}
	if v := c.Query("out_of_stock_days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("%w: out_of_stock_days must be a non-negative integer", models.ErrInvalidArgument)
		}
		f.OutOfStockDays = &n
	}

	var err error
	if f.PeriodStart, err = queryDate(c, "period_start"); err != nil {
		return f, err
	}
	if f.PeriodEnd, err = queryDate(c, "period_end"); err != nil {
		return f, err
	}
	return f, nil
}

func queryDate(c *gin.Context, name string) (*time.Time, error) {
	v := c.Query(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date format for '%s', use YYYY-MM-DD", models.ErrInvalidArgument, name)
	}
	return &t, nil
}

// queryInt returns def when the parameter is absent and an error when it is outside [lo, hi].
func queryInt(c *gin.Context, name string, def, lo, hi int) (int, error) {
	v := c.Query(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("%w: %s must be an integer in [%d, %d]", models.ErrInvalidArgument, name, lo, hi)
	}
	return n, nil
}

// sources/normalizer.go
package sources

import (
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gewnthar/favdemand/models"
	"github.com/gewnthar/favdemand/utils"
	"github.com/jszwec/csvutil"
	"github.com/xuri/excelize/v2"
)

// RawTable is one sheet of a source export as text cells: a header row and data rows.
type RawTable struct {
	Header []string
	Rows   [][]string
}

// Exact source headers and the canonical column each one feeds.
var headerMapping = map[string]string{
	"Название товара":    "name",
	"Бренд":              "brand",
	"Ссылка на товар":    "link",
	"Категория 1 уровня": "category_level_1",
	"Категория 2 уровня": "category_level_2",
	"Категория 3 уровня": "category_level_3",
	"Категория 4 уровня": "category_level_4",
}

// Header fragments that locate columns whose exact title varies between export versions.
var (
	favoritesFragments = []string{"Количество добавлений", "добавлений в избранное"}
	stockFragments     = []string{"Последнее появление", "появление в наличии"}
)

// canonicalRow is the decode target for every source format once headers are resolved.
// Numeric and date cells stay text here so that unparseable values can be coerced
// instead of failing the whole file.
type canonicalRow struct {
	Name           string `csv:"name"`
	Brand          string `csv:"brand"`
	Link           string `csv:"link"`
	CategoryLevel1 string `csv:"category_level_1"`
	CategoryLevel2 string `csv:"category_level_2"`
	CategoryLevel3 string `csv:"category_level_3"`
	CategoryLevel4 string `csv:"category_level_4"`
	Favorites      string `csv:"favorites_count"`
	LastInStock    string `csv:"last_in_stock"`
}

// ResolveHeader maps source headers onto canonical column names. Columns with no canonical
// meaning, and any later column competing for an already claimed name, get a unique
// placeholder so the decoder ignores them.
func ResolveHeader(header []string) []string {
	out := make([]string, len(header))
	claimed := make(map[string]bool)
	claim := func(i int, name string) bool {
		if claimed[name] {
			return false
		}
		claimed[name] = true
		out[i] = name
		return true
	}

	for i, h := range header {
		if name, ok := headerMapping[strings.TrimSpace(h)]; ok {
			claim(i, name)
		}
	}
	if i := findByFragment(header, favoritesFragments); i >= 0 && out[i] == "" {
		claim(i, "favorites_count")
	}
	if i := findByFragment(header, stockFragments); i >= 0 && out[i] == "" {
		claim(i, "last_in_stock")
	}
	for i := range out {
		if out[i] == "" {
			out[i] = fmt.Sprintf("_unused_%d", i)
		}
	}
	return out
}

// findByFragment returns the first column whose header contains any fragment, or -1.
func findByFragment(header []string, fragments []string) int {
	for i, h := range header {
		for _, f := range fragments {
			if strings.Contains(h, f) {
				return i
			}
		}
	}
	return -1
}

// Normalize converts a raw sheet into canonical product rows. Period bounds come from the
// filename; days_out_of_stock is left nil for the pipeline to compute over the whole table.
// Rows without a product name are skipped.
func Normalize(table RawTable, filename string) ([]models.ProductRecord, error) {
	if len(table.Header) == 0 {
		return nil, errors.New("missing header row")
	}
	header := ResolveHeader(table.Header)
	dec, err := csvutil.NewDecoder(&rowReader{rows: table.Rows, width: len(header)}, header...)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	periodStart, periodEnd := ParsePeriod(filename)
	records := make([]models.ProductRecord, 0, len(table.Rows))
	for {
		var raw canonicalRow
		if err := dec.Decode(&raw); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("failed to decode row %d: %w", len(records)+1, err)
		}

		name := strings.TrimSpace(raw.Name)
		if name == "" {
			continue
		}
		rec := models.ProductRecord{
			Name:           name,
			Brand:          strings.TrimSpace(raw.Brand),
			Link:           strings.TrimSpace(raw.Link),
			CategoryLevel1: strings.TrimSpace(raw.CategoryLevel1),
			CategoryLevel2: strings.TrimSpace(raw.CategoryLevel2),
			CategoryLevel3: strings.TrimSpace(raw.CategoryLevel3),
			CategoryLevel4: strings.TrimSpace(raw.CategoryLevel4),
			FavoritesCount: ParseCount(raw.Favorites),
			LastInStock:    ParseDate(raw.LastInStock),
			PeriodStart:    copyTime(periodStart),
			PeriodEnd:      copyTime(periodEnd),
		}
		rec.ID = utils.ProductID(rec.Name, rec.Brand, rec.Link)
		records = append(records, rec)
	}
	return records, nil
}

// rowReader feeds in-memory rows to csvutil, padding or trimming each row to the header width.
type rowReader struct {
	rows  [][]string
	width int
	pos   int
}

func (r *rowReader) Read() ([]string, error) {
	if r.pos >= len(r.rows) {
		return nil, io.EOF
	}
	row := r.rows[r.pos]
	r.pos++
	if len(row) == r.width {
		return row, nil
	}
	out := make([]string, r.width)
	copy(out, row)
	return out, nil
}

// Commas between groups of exactly three digits are thousands separators, not a decimal comma.
var thousandsComma = regexp.MustCompile(`^-?\d{1,3}(,\d{3})+$`)

// ParseCount reads a favorites cell. Blank or unreadable values count as 0 and negative
// values are clamped to 0.
func ParseCount(s string) int64 {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return 0
	}
	if thousandsComma.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
		if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		n = int64(math.Round(f))
	}
	if n < 0 {
		return 0
	}
	return n
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"02.01.2006",
	"02.01.2006 15:04:05",
	"02.01.06",
	"01/02/2006",
	"1/2/06",
	"01-02-06",
	"2006/01/02",
}

// ParseDate reads a last-in-stock cell as a calendar date. Spreadsheet serial numbers are
// accepted as well as the textual layouts above; anything else yields nil.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := models.DateOnly(t)
			return &d
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial >= 1 && serial < 2958466 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			d := models.DateOnly(t)
			return &d
		}
	}
	return nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// sources/period_parser.go
package sources

import (
	"regexp"
	"strconv"
	"time"
)

const isoDateLayout = "2006-01-02"

type periodPattern struct {
	re    *regexp.Regexp
	build func(m []string) (time.Time, time.Time, bool)
}

func monthPattern(name string, month time.Month, lastDay int) periodPattern {
	return periodPattern{
		re: regexp.MustCompile(name + `-(\d{4})`),
		build: func(m []string) (time.Time, time.Time, bool) {
			y, _ := strconv.Atoi(m[1])
			return time.Date(y, month, 1, 0, 0, 0, 0, time.UTC), time.Date(y, month, lastDay, 0, 0, 0, 0, time.UTC), true
		},
	}
}

// Order matters: filenames can loosely match more than one pattern and the first hit wins.
var periodPatterns = []periodPattern{
	// chto-dobavlyaut-v-izbrannoe_-06_03_2021-04_04_2021.xlsx
	{
		re: regexp.MustCompile(`(\d{2})_(\d{2})_(\d{4})-(\d{2})_(\d{2})_(\d{4})`),
		build: func(m []string) (time.Time, time.Time, bool) {
			start, ok1 := strictDate(m[3], m[2], m[1])
			end, ok2 := strictDate(m[6], m[5], m[4])
			return start, end, ok1 && ok2
		},
	},
	// chto-dobavlyali-v-izbrannoe-v-dekabre-2020.xlsx
	monthPattern("dekabre", time.December, 31),
	monthPattern("noyabre", time.November, 30),
	monthPattern("yanvare", time.January, 31),
	// 2021-07-12_opendata_datasetfavorites_2021-06-12_2021-07-11.xlsx
	{
		re: regexp.MustCompile(`(\d{4}-\d{2}-\d{2})_opendata.*?(\d{4}-\d{2}-\d{2})_(\d{4}-\d{2}-\d{2})`),
		build: func(m []string) (time.Time, time.Time, bool) {
			start, err1 := time.Parse(isoDateLayout, m[2])
			end, err2 := time.Parse(isoDateLayout, m[3])
			return start, end, err1 == nil && err2 == nil
		},
	},
}

// ParsePeriod extracts the reporting window encoded in a source filename.
// A pattern that matches but yields an impossible date is skipped in favor of later patterns.
// Returns nil bounds when nothing matches.
func ParsePeriod(filename string) (start, end *time.Time) {
	for _, p := range periodPatterns {
		m := p.re.FindStringSubmatch(filename)
		if m == nil {
			continue
		}
		s, e, ok := p.build(m)
		if !ok {
			continue
		}
		return &s, &e
	}
	return nil, nil
}

// strictDate builds a UTC date and rejects values time.Date would normalize (31 Feb and the like).
func strictDate(year, month, day string) (time.Time, bool) {
	y, err1 := strconv.Atoi(year)
	m, err2 := strconv.Atoi(month)
	d, err3 := strconv.Atoi(day)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

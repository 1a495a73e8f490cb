// sources/readers.go
package sources

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gewnthar/favdemand/models"
	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for file extensions no reader handles.
var ErrUnsupportedFormat = errors.New("unsupported source format")

// ReadFile loads the first sheet of a source export, picking the reader by extension.
func ReadFile(path string) (RawTable, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(path)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return RawTable{}, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		return ReadCSV(f)
	case ".html", ".htm":
		f, err := os.Open(path)
		if err != nil {
			return RawTable{}, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		return ReadHTMLTable(f)
	default:
		return RawTable{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// LoadFile reads and normalizes one source file and describes it for the metadata table.
func LoadFile(path string) ([]models.ProductRecord, models.FileMetadata, error) {
	table, err := ReadFile(path)
	if err != nil {
		return nil, models.FileMetadata{}, err
	}
	name := filepath.Base(path)
	rows, err := Normalize(table, name)
	if err != nil {
		return nil, models.FileMetadata{}, err
	}
	start, end := ParsePeriod(name)
	return rows, models.FileMetadata{PeriodStart: start, PeriodEnd: end, RowsCount: len(rows)}, nil
}

// ReadXLSX returns the rows of the workbook's first sheet. Cells are read raw, so dates
// arrive as serial numbers rather than in whatever display format the sheet uses.
func ReadXLSX(path string) (RawTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return RawTable{}, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return RawTable{}, fmt.Errorf("workbook %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return RawTable{}, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return splitHeader(rows)
}

// ReadCSV parses a CSV export. The delimiter (comma or semicolon) is guessed from the
// header line and a leading byte order mark is dropped.
func ReadCSV(r io.Reader) (RawTable, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && bytes.Equal(b, []byte{0xEF, 0xBB, 0xBF}) {
		br.Discard(3)
	}
	line, _ := br.Peek(1024)
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	if bytes.Count(line, []byte{';'}) > bytes.Count(line, []byte{','}) {
		cr.Comma = ';'
	}
	rows, err := cr.ReadAll()
	if err != nil {
		return RawTable{}, fmt.Errorf("failed to parse csv: %w", err)
	}
	return splitHeader(rows)
}

// ReadHTMLTable reads the first <table> of an HTML export (the "xls" files some
// marketplaces serve are HTML underneath). The first row is the header.
func ReadHTMLTable(r io.Reader) (RawTable, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return RawTable{}, fmt.Errorf("failed to parse html: %w", err)
	}
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return RawTable{}, errors.New("no table found in html export")
	}

	var rows [][]string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		rows = append(rows, cells)
	})
	return splitHeader(rows)
}

// splitHeader treats the first non-blank row as the header and drops fully blank rows.
func splitHeader(rows [][]string) (RawTable, error) {
	var t RawTable
	for _, row := range rows {
		if isBlank(row) {
			continue
		}
		if t.Header == nil {
			t.Header = row
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	if t.Header == nil {
		return RawTable{}, errors.New("source has no header row")
	}
	return t, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

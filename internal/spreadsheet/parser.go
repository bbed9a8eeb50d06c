package spreadsheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"quantity-sync-service/internal/models"
)

// Supported file formats
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// headerAliases maps normalized header names onto canonical fields. When a
// file carries several aliases of one field, the first non-blank cell in
// this order wins.
var headerAliases = map[string][]string{
	models.FieldSKU:         {"sku"},
	models.FieldQuantity:    {"quantity", "qta", "qty"},
	models.FieldLocationID:  {"id sede", "location_id", "location id", "location"},
	models.FieldSaleChannel: {"canali di vendita", "canale di vendita", "sale_channel", "sale channel"},
}

// aliasField and aliasRank index headerAliases by alias
var (
	aliasField = make(map[string]string)
	aliasRank  = make(map[string]int)
)

func init() {
	for field, aliases := range headerAliases {
		for rank, alias := range aliases {
			aliasField[alias] = field
			aliasRank[alias] = rank
		}
	}
}

// IsSupported reports whether the file extension can be parsed
func IsSupported(filename string) bool {
	switch formatOf(filename) {
	case FormatCSV, FormatXLSX:
		return true
	}
	return false
}

func formatOf(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}

// NormalizeHeader lower-cases a header, strips the required marker and
// resolves known aliases
func NormalizeHeader(header string) string {
	h := cleanHeader(header)
	if canonical, ok := aliasField[h]; ok {
		return canonical
	}
	return h
}

func cleanHeader(header string) string {
	h := strings.TrimPrefix(header, "\ufeff")
	h = strings.TrimSpace(strings.ToLower(h))
	return strings.TrimSpace(strings.TrimSuffix(h, " *"))
}

// Parse reads a CSV or XLSX quantity file into a record set
func Parse(r io.Reader, filename string) (*models.RecordSet, error) {
	var (
		rows [][]string
		err  error
	)
	switch formatOf(filename) {
	case FormatCSV:
		rows, err = readCSV(r)
	case FormatXLSX:
		rows, err = readXLSX(r)
	default:
		return nil, &models.MalformedInputError{Reason: "only CSV and XLSX files are supported"}
	}
	if err != nil {
		return nil, &models.MalformedInputError{Reason: "unreadable file", Err: err}
	}
	if len(rows) == 0 {
		return nil, &models.MalformedInputError{Reason: "file has no header row"}
	}
	return buildRecordSet(rows), nil
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading line %d: %w", len(rows)+1, err)
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in Excel file")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}
	return rows, nil
}

// column is one header cell resolved to its field and alias rank
type column struct {
	field string
	rank  int
}

func buildRecordSet(rows [][]string) *models.RecordSet {
	columns := make([]column, len(rows[0]))
	set := &models.RecordSet{Columns: make([]string, 0, len(rows[0]))}
	seen := make(map[string]bool, len(rows[0]))
	for i, h := range rows[0] {
		cleaned := cleanHeader(h)
		columns[i] = column{field: NormalizeHeader(h), rank: aliasRank[cleaned]}
		if f := columns[i].field; f != "" && !seen[f] {
			seen[f] = true
			set.Columns = append(set.Columns, f)
		}
	}

	for idx, cells := range rows[1:] {
		// fully empty lines are spreadsheet padding, not records
		if allEmpty(cells) {
			continue
		}
		record := models.SourceRecord{Row: idx + 2}
		chosen := make(map[string]int, len(headerAliases))
		for i, value := range cells {
			if i >= len(columns) {
				break
			}
			value = strings.TrimSpace(value)
			col := columns[i]
			if value == "" {
				continue
			}
			if rank, ok := chosen[col.field]; ok && rank <= col.rank {
				continue
			}
			switch col.field {
			case models.FieldSKU:
				record.SKU = value
			case models.FieldQuantity:
				record.Quantity = value
			case models.FieldLocationID:
				record.LocationID = value
			case models.FieldSaleChannel:
				record.SaleChannel = value
			default:
				continue
			}
			chosen[col.field] = col.rank
		}
		set.Records = append(set.Records, record)
	}
	return set
}

func allEmpty(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

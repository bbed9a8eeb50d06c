package spreadsheet

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"quantity-sync-service/internal/models"
)

// TemplateColumn defines a column in the import template
type TemplateColumn struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Type        string `json:"type"`
	Example     string `json:"example"`
}

// Template defines the structure of a quantity file
type Template struct {
	Entity     string              `json:"entity"`
	Version    string              `json:"version"`
	Columns    []TemplateColumn    `json:"columns"`
	SampleData []map[string]string `json:"sampleData,omitempty"`
}

// QuantityTemplate returns the template for quantity files
func QuantityTemplate() Template {
	return Template{
		Entity:  "quantities",
		Version: "1.0",
		Columns: []TemplateColumn{
			{Name: models.FieldSKU, Description: "Variant SKU", Required: true, Type: "string", Example: "TSHIRT-RED-M"},
			{Name: models.FieldQuantity, Description: "Quantity, meaning depends on the sync mode", Required: true, Type: "integer", Example: "12"},
			{Name: models.FieldLocationID, Description: "Location ID, empty applies to every location", Required: false, Type: "string", Example: "70931234567"},
			{Name: models.FieldSaleChannel, Description: "Comma separated publication IDs", Required: false, Type: "string", Example: "1234567,7654321"},
		},
		SampleData: []map[string]string{
			{
				models.FieldSKU:         "TSHIRT-RED-M",
				models.FieldQuantity:    "12",
				models.FieldLocationID:  "70931234567",
				models.FieldSaleChannel: "",
			},
			{
				models.FieldSKU:         "TSHIRT-RED-L",
				models.FieldQuantity:    "4",
				models.FieldLocationID:  "",
				models.FieldSaleChannel: "1234567",
			},
		},
	}
}

// WriteCSV renders the template header and sample rows as CSV
func WriteCSV(w io.Writer, template Template) error {
	writer := csv.NewWriter(w)

	headers := make([]string, len(template.Columns))
	for i, col := range template.Columns {
		headers[i] = col.Name
	}
	if err := writer.Write(headers); err != nil {
		return err
	}

	for _, sample := range template.SampleData {
		row := make([]string, len(template.Columns))
		for i, col := range template.Columns {
			row[i] = sample[col.Name]
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteXLSX renders the template as a workbook, marking required headers
func WriteXLSX(w io.Writer, template Template, sheetName string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	requiredStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C65911"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create required style: %w", err)
	}

	for i, col := range template.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		style := headerStyle
		text := col.Name
		if col.Required {
			style = requiredStyle
			text += " *"
		}
		f.SetCellValue(sheetName, cell, text)
		f.SetCellStyle(sheetName, cell, cell, style)

		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, colName, colName, 20)
	}

	for rowIdx, sample := range template.SampleData {
		for colIdx, col := range template.Columns {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheetName, cell, sample[col.Name])
		}
	}

	sheetIdx, _ := f.GetSheetIndex(sheetName)
	f.SetActiveSheet(sheetIdx)

	return f.Write(w)
}

package excel

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"isoquant/domain/core"
	"isoquant/domain/quant"
	"isoquant/internal"
)

var logger = internal.DefaultLogger.WithComponent("excel")

// missingTokens are cell values read as a missing measurement.
var missingTokens = map[string]bool{"": true, "na": true, "nan": true, "n/a": true, "null": true, "-": true}

// DataReader handles reading Excel and CSV files
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
}

// NewDataReader creates a new data reader that handles both Excel and CSV files
func NewDataReader(filePath string) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" || ext == ".tsv" {
		fileType = "csv"
	}
	return &DataReader{filePath: filePath, fileType: fileType}
}

// ReadSheet reads one sheet into structured format. CSV files have a single
// sheet and ignore the name.
func (r *DataReader) ReadSheet(name string) (*SheetData, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, core.NewNotFoundError(strings.ToUpper(r.fileType)+" file", r.filePath)
	}

	switch r.fileType {
	case "csv":
		return r.readCSVData()
	case "xlsx":
		return r.readExcelData(name)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", r.fileType)
	}
}

// readExcelData reads one sheet of the workbook
func (r *DataReader) readExcelData(sheet string) (*SheetData, error) {
	startTime := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	logger.Debug("sheet %s read in %.2fms (%d rows)", sheet, float64(time.Since(startTime).Nanoseconds())/1e6, len(rows))

	if len(rows) < 2 {
		return nil, core.NewValidationError(sheet, "sheet must have a header row and at least one data row")
	}
	return r.processRows(rows)
}

// readCSVData reads a comma or tab separated file
func (r *DataReader) readCSVData() (*SheetData, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	if strings.EqualFold(filepath.Ext(r.filePath), ".tsv") {
		reader.Comma = '\t'
	}
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	if len(rows) < 2 {
		return nil, core.NewValidationError("csv", "file must have a header row and at least one data row")
	}
	return r.processRows(rows)
}

// processRows converts raw string rows into SheetData, normalizing headers
func (r *DataReader) processRows(rows [][]string) (*SheetData, error) {
	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	for i, header := range headerRow {
		headers[i] = canonicalHeader(header)
	}

	var dataRows []RawRowData
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		rowData := make(RawRowData, len(headers))
		empty := true
		for j, cell := range row {
			if j < len(headers) {
				cell = strings.TrimSpace(cell)
				rowData[headers[j]] = cell
				if cell != "" {
					empty = false
				}
			}
		}
		if !empty {
			dataRows = append(dataRows, rowData)
		}
	}

	return &SheetData{Headers: headers, Rows: dataRows}, nil
}

func canonicalHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	if alias, ok := columnAliases[h]; ok {
		return alias
	}
	return strings.ReplaceAll(h, " ", "_")
}

// ReadTable reads the psm sheet (or the CSV file) and the design. When the
// workbook has no design sheet, the design is derived from the condition column.
func (r *DataReader) ReadTable(cfg ExcelConfig) (*quant.Table, *quant.Design, error) {
	data, err := r.ReadSheet(SheetPSM)
	if err != nil {
		return nil, nil, err
	}
	if err := requireColumns(data, ColRun, ColChannel, ColProtein, ColValue); err != nil {
		return nil, nil, err
	}

	var assign map[quant.Sample]string
	if r.fileType == "xlsx" && r.hasSheet(SheetDesign) {
		design, err := r.ReadSheet(SheetDesign)
		if err != nil {
			return nil, nil, err
		}
		if assign, err = parseDesign(design); err != nil {
			return nil, nil, err
		}
	}

	rows := make([]quant.Row, 0, len(data.Rows))
	for i, raw := range data.Rows {
		row, err := parseRow(raw, cfg.Log2Transform)
		if err != nil {
			return nil, nil, fmt.Errorf("psm row %d: %w", i+2, err)
		}
		if assign != nil {
			cond, ok := assign[row.Sample()]
			if !ok {
				return nil, nil, core.NewMissingDesignError(row.Sample().String())
			}
			row.Condition = cond
		}
		rows = append(rows, row)
	}

	scale := cfg.Scale
	if cfg.Log2Transform {
		scale = quant.ScaleLog2
	}
	table, err := quant.NewTable(rows, scale, cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var design *quant.Design
	if assign != nil {
		design, err = quant.NewDesign(assign, cfg.Reference)
	} else {
		design, err = quant.DesignFromTable(table, cfg.Reference)
	}
	if err != nil {
		return nil, nil, err
	}
	logger.Info("read %d rows, %d samples, %d proteins from %s", table.Len(), len(table.Samples()), len(table.Proteins()), r.filePath)
	return table, design, nil
}

func (r *DataReader) hasSheet(name string) bool {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return false
	}
	defer f.Close()
	idx, err := f.GetSheetIndex(name)
	return err == nil && idx >= 0
}

func requireColumns(data *SheetData, cols ...string) error {
	have := make(map[string]bool, len(data.Headers))
	for _, h := range data.Headers {
		have[h] = true
	}
	for _, c := range cols {
		if !have[c] {
			return core.NewValidationError("columns", fmt.Sprintf("missing required column %q", c))
		}
	}
	return nil
}

func parseDesign(data *SheetData) (map[quant.Sample]string, error) {
	if err := requireColumns(data, ColRun, ColChannel, ColCondition); err != nil {
		return nil, err
	}
	assign := make(map[quant.Sample]string, len(data.Rows))
	for i, raw := range data.Rows {
		s := quant.Sample{Run: raw[ColRun], Channel: raw[ColChannel]}
		cond := raw[ColCondition]
		if s.Run == "" || s.Channel == "" || cond == "" {
			return nil, core.NewValidationError("design", fmt.Sprintf("row %d needs run, channel and condition", i+2))
		}
		if prev, ok := assign[s]; ok && prev != cond {
			return nil, core.NewValidationError("design", fmt.Sprintf("sample %s assigned to %q and %q", s, prev, cond))
		}
		assign[s] = cond
	}
	return assign, nil
}

func parseRow(raw RawRowData, log2 bool) (quant.Row, error) {
	row := quant.Row{
		Run:          raw[ColRun],
		Channel:      raw[ColChannel],
		Condition:    raw[ColCondition],
		Protein:      raw[ColProtein],
		Peptide:      raw[ColPeptide],
		PSM:          raw[ColPSM],
		Modification: raw[ColModification],
	}
	var err error
	if row.Value, err = parseFloat(raw[ColValue]); err != nil {
		return row, fmt.Errorf("%w: value: %v", core.ErrInvalidInput, err)
	}
	if log2 && !math.IsNaN(row.Value) {
		if row.Value <= 0 {
			row.Value = math.NaN()
		} else {
			row.Value = math.Log2(row.Value)
		}
	}
	if s := raw[ColCharge]; s != "" {
		if row.Charge, err = strconv.Atoi(strings.TrimPrefix(s, "+")); err != nil {
			return row, fmt.Errorf("%w: charge: %v", core.ErrInvalidInput, err)
		}
	}
	for _, f := range []struct {
		col string
		dst *float64
	}{
		{ColRetentionTime, &row.RetentionTime},
		{ColScore, &row.Score},
		{ColMassDeviation, &row.MassDeviation},
	} {
		if raw[f.col] == "" {
			continue
		}
		if *f.dst, err = parseFloat(raw[f.col]); err != nil {
			return row, fmt.Errorf("%w: %s: %v", core.ErrInvalidInput, f.col, err)
		}
	}
	return row, nil
}

func parseFloat(s string) (float64, error) {
	if missingTokens[strings.ToLower(s)] {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

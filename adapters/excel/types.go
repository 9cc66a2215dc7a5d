package excel

// RawRowData represents a row of raw sheet data as string key-value pairs
type RawRowData map[string]string

// SheetData represents one sheet (or CSV file) as headers and rows
type SheetData struct {
	Headers []string     // Column headers, lower-cased
	Rows    []RawRowData // Data rows
}

// Sheet names of the input and results workbooks
const (
	SheetPSM     = "psm"
	SheetDesign  = "design"
	SheetMetrics = "metrics"
	SheetAgree   = "agreement"
)

// Column names of the psm and design sheets
const (
	ColRun           = "run"
	ColChannel       = "channel"
	ColCondition     = "condition"
	ColProtein       = "protein"
	ColPeptide       = "peptide"
	ColPSM           = "psm"
	ColCharge        = "charge"
	ColModification  = "modification"
	ColRetentionTime = "retention_time"
	ColScore         = "score"
	ColMassDeviation = "mass_deviation"
	ColValue         = "value"
)

// columnAliases maps common search-engine export headers to column names.
var columnAliases = map[string]string{
	"raw file":          ColRun,
	"file":              ColRun,
	"label":             ColChannel,
	"reporter":          ColChannel,
	"group":             ColCondition,
	"protein accession": ColProtein,
	"accession":         ColProtein,
	"sequence":          ColPeptide,
	"psm id":            ColPSM,
	"scan":              ColPSM,
	"z":                 ColCharge,
	"rt":                ColRetentionTime,
	"retention time":    ColRetentionTime,
	"delta mass [ppm]":  ColMassDeviation,
	"ppm":               ColMassDeviation,
	"intensity":         ColValue,
	"abundance":         ColValue,
}

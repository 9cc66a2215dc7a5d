package excel

import (
	"isoquant/domain/quant"
)

// ExcelConfig holds configuration for a workbook data source
type ExcelConfig struct {
	FilePath  string      `json:"file_path"`
	Reference string      `json:"reference"`
	Scale     quant.Scale `json:"scale"`
	Level     quant.Level `json:"level"`
	// Log2Transform converts raw intensities to log2 on read.
	Log2Transform bool `json:"log2_transform"`
}

// DefaultExcelConfig returns defaults for PSM-level log2 workbooks
func DefaultExcelConfig() ExcelConfig {
	return ExcelConfig{
		Scale: quant.ScaleLog2,
		Level: quant.LevelPSM,
	}
}

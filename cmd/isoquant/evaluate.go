package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"isoquant/adapters/excel"
	"isoquant/adapters/report"
	"isoquant/app"
	"isoquant/domain/evaluation"
	"isoquant/domain/quant"
	"isoquant/internal/config"
	"isoquant/internal/container"
)

func newEvaluateCmd() *cobra.Command {
	var (
		experimentPath string
		inputPath      string
		outPath        string
		htmlPath       string
		level          string
		log2           bool
		restrict       bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run every pipeline variant of an experiment and score it against the known truth",
		Long: `Run the pipeline variants listed in an experiment YAML file against one input
workbook (sheets psm and design) or CSV file, then score each variant.

Example: isoquant evaluate --experiment grid.yaml --input spikein.xlsx --out results.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			exp, err := config.LoadExperiment(experimentPath)
			if err != nil {
				return err
			}
			scale, err := quant.ParseScale(exp.Scale)
			if err != nil {
				return err
			}
			lvl, err := quant.ParseLevel(level)
			if err != nil {
				return err
			}

			excelCfg := excel.DefaultExcelConfig()
			excelCfg.FilePath = inputPath
			excelCfg.Reference = exp.Reference
			excelCfg.Scale = scale
			excelCfg.Level = lvl
			excelCfg.Log2Transform = log2
			table, design, err := excel.NewDataReader(inputPath).ReadTable(excelCfg)
			if err != nil {
				return err
			}

			c, err := container.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer c.Shutdown(cmd.Context())

			runs, err := c.PipelineService(exp.Seed).RunAll(cmd.Context(), app.RunRequest{
				Table: table, Design: design, Variants: exp.Variants, Seed: exp.Seed,
			})
			if err != nil {
				return err
			}

			rep := c.Evaluation.Evaluate(runs, evaluation.NewGroundTruth(exp.Truth...), app.EvalConfig{
				Criteria:        evaluation.Criteria{Threshold: exp.Threshold, MinAbsLogFC: exp.MinAbsLogFC},
				RestrictToTruth: restrict,
			})

			if outPath != "" {
				if err := excel.WriteResults(outPath, rep, runs); err != nil {
					return err
				}
				logger.Info("wrote results workbook %s", outPath)
			}
			if htmlPath != "" {
				if err := os.WriteFile(htmlPath, report.HTML(rep), 0o644); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
				logger.Info("wrote report %s", htmlPath)
			}
			fmt.Fprint(cmd.OutOrStdout(), report.Markdown(rep))
			return nil
		},
	}

	cmd.Flags().StringVar(&experimentPath, "experiment", "", "Experiment YAML file")
	cmd.Flags().StringVar(&inputPath, "input", "", "Input workbook (.xlsx) or delimited file (.csv, .tsv)")
	cmd.Flags().StringVar(&outPath, "out", "", "Results workbook to write")
	cmd.Flags().StringVar(&htmlPath, "html", "", "HTML metrics report to write")
	cmd.Flags().StringVar(&level, "level", "psm", "Level of the input rows (psm, peptide, protein)")
	cmd.Flags().BoolVar(&log2, "log2", false, "Convert raw intensities to log2 while reading")
	cmd.Flags().BoolVar(&restrict, "restrict-agreement", false, "Compute agreement on truth proteins only")
	cmd.MarkFlagRequired("experiment")
	cmd.MarkFlagRequired("input")

	return cmd
}

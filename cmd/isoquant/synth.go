package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"isoquant/adapters/excel"
	"isoquant/domain/quant"
	"isoquant/internal/config"
	"isoquant/internal/testkit"
)

func newSynthCmd() *cobra.Command {
	gen := testkit.DefaultSpikeInConfig()
	var (
		outPath        string
		experimentPath string
		scale          string
	)

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Generate a spike-in PSM workbook with known differential proteins",
		Long: `Generate an isobaric PSM table in which a known subset of proteins is spiked
into the treatment channels. With --experiment a starter experiment listing the
spiked proteins as truth is written next to it.

Example: isoquant synth --out spikein.xlsx --experiment grid.yaml --proteins 200 --spiked 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := quant.ParseScale(scale)
			if err != nil {
				return err
			}
			gen.Scale = s

			data, err := testkit.GenerateSpikeIn(gen)
			if err != nil {
				return err
			}
			if err := excel.WriteTable(outPath, data.Table, data.Design); err != nil {
				return err
			}
			logger.Info("wrote %d rows to %s", data.Table.Len(), outPath)

			if experimentPath != "" {
				exp := starterExperiment(gen, data.Truth.Proteins())
				raw, err := yaml.Marshal(exp)
				if err != nil {
					return fmt.Errorf("encode experiment: %w", err)
				}
				if err := os.WriteFile(experimentPath, raw, 0o644); err != nil {
					return fmt.Errorf("write experiment: %w", err)
				}
				logger.Info("wrote experiment %s", experimentPath)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "spiked: %s\n", strings.Join(data.Truth.Proteins(), ","))
			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "spikein.xlsx", "Workbook to write")
	cmd.Flags().StringVar(&experimentPath, "experiment", "", "Starter experiment YAML to write")
	cmd.Flags().StringVar(&scale, "scale", "log2", "Scale of the written values (log2, raw)")
	cmd.Flags().IntVar(&gen.Runs, "runs", gen.Runs, "Number of runs")
	cmd.Flags().IntVar(&gen.ChannelsPerCondition, "channels", gen.ChannelsPerCondition, "Channels per condition in each run")
	cmd.Flags().IntVar(&gen.Proteins, "proteins", gen.Proteins, "Number of proteins")
	cmd.Flags().IntVar(&gen.Spiked, "spiked", gen.Spiked, "Number of spiked proteins")
	cmd.Flags().IntVar(&gen.PeptidesPerProtein, "peptides", gen.PeptidesPerProtein, "Peptides per protein")
	cmd.Flags().IntVar(&gen.PSMsPerPeptide, "psms", gen.PSMsPerPeptide, "PSMs per peptide")
	cmd.Flags().Float64Var(&gen.Effect, "effect", gen.Effect, "log2 fold change of spiked proteins")
	cmd.Flags().Float64Var(&gen.Noise, "noise", gen.Noise, "Per-PSM log2 noise standard deviation")
	cmd.Flags().Float64Var(&gen.MissingRate, "missing", gen.MissingRate, "Fraction of missing channel values")
	cmd.Flags().BoolVar(&gen.Mirrored, "mirrored", gen.Mirrored, "Share loading, noise and missingness between matching reference and treatment channels")
	cmd.Flags().BoolVar(&gen.Interference, "interference", gen.Interference, "Add one co-isolated PSM to every spiked protein")
	cmd.Flags().Int64Var(&gen.Seed, "seed", gen.Seed, "Random seed")

	return cmd
}

// starterExperiment compares median and sum summarization after a row sweep.
// Both recenter the protein-level samples before testing.
func starterExperiment(gen testkit.SpikeInConfig, truth []string) config.Experiment {
	op := "subtract"
	sweep := []config.StepConfig{{Name: "median_sweep", Params: map[string]interface{}{"op": op, "rows": true}}}
	if !gen.Scale.Additive() {
		op = "divide"
		sweep = []config.StepConfig{{Name: "raking"}}
	}
	post := []config.StepConfig{{Name: "median_sweep", Params: map[string]interface{}{
		"op": op, "rows": false, "columns": true, "scope": "global",
	}}}
	test := config.StepConfig{Name: "moderated_t"}
	return config.Experiment{
		Reference: gen.Reference,
		Scale:     gen.Scale.String(),
		Threshold: 0.05,
		Seed:      gen.Seed,
		Truth:     truth,
		Variants: []config.VariantConfig{
			{Name: "median", Normalize: sweep, Summarize: config.StepConfig{Name: "median"}, PostNormalize: post, Test: test},
			{Name: "sum", Normalize: sweep, Summarize: config.StepConfig{Name: "sum"}, PostNormalize: post, Test: test},
			{Name: "weighted", Normalize: sweep, Summarize: config.StepConfig{Name: "weighted"}, Test: config.StepConfig{Name: "rank_sum"}},
		},
	}
}

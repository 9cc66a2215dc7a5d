package testkit

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"isoquant/domain/evaluation"
	"isoquant/domain/quant"
)

const aminoAcids = "ACDEFGHIKLMNPQRSTVWY"

// SpikeInConfig configures the spike-in data generator
type SpikeInConfig struct {
	Runs                 int     `json:"runs"`
	ChannelsPerCondition int     `json:"channels_per_condition"`
	Proteins             int     `json:"proteins"`
	Spiked               int     `json:"spiked"`
	PeptidesPerProtein   int     `json:"peptides_per_protein"`
	PSMsPerPeptide       int     `json:"psms_per_peptide"`
	Effect               float64 `json:"effect"` // log2 fold change of spiked proteins
	Noise                float64 `json:"noise"`  // per-PSM log2 noise sd
	MissingRate          float64 `json:"missing_rate"`
	// Mirrored gives the reference and treatment channel at the same slot
	// identical loading, noise and missingness, so null proteins differ by
	// exactly zero. Off by default: every channel draws its own.
	Mirrored bool `json:"mirrored"`
	// Interference adds one co-isolated PSM to every spiked protein whose
	// reversed ratio cancels the protein's summed change.
	Interference bool        `json:"interference"`
	Reference    string      `json:"reference"`
	Treatment    string      `json:"treatment"`
	Scale        quant.Scale `json:"scale"`
	Seed         int64       `json:"seed"`
}

// DefaultSpikeInConfig returns 2 runs x 4 channels, 20 proteins, 5 spiked +1 log2
func DefaultSpikeInConfig() SpikeInConfig {
	return SpikeInConfig{
		Runs:                 2,
		ChannelsPerCondition: 2,
		Proteins:             20,
		Spiked:               5,
		PeptidesPerProtein:   3,
		PSMsPerPeptide:       2,
		Effect:               1,
		Noise:                0.15,
		Interference:         true,
		Reference:            "ctrl",
		Treatment:            "spike",
		Scale:                quant.ScaleLog2,
		Seed:                 42,
	}
}

// SpikeInData is a generated PSM table with its design and truth
type SpikeInData struct {
	Table  *quant.Table
	Design *quant.Design
	Truth  evaluation.GroundTruth
}

// SpikeInGenerator generates isobaric PSM tables with known differential proteins
type SpikeInGenerator struct {
	config SpikeInConfig
	rng    *rand.Rand
	seqs   map[string]bool
}

// NewSpikeInGenerator creates a new spike-in generator
func NewSpikeInGenerator(config SpikeInConfig) *SpikeInGenerator {
	return &SpikeInGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
		seqs:   make(map[string]bool),
	}
}

// GenerateSpikeIn is a shorthand for NewSpikeInGenerator(config).Generate()
func GenerateSpikeIn(config SpikeInConfig) (*SpikeInData, error) {
	return NewSpikeInGenerator(config).Generate()
}

type peptideSpec struct {
	sequence string
	effect   float64
	rt       float64
	charges  []int
	scores   []float64
	massDevs []float64
	// shift is added to reference channels and subtracted from treatment.
	shift float64
}

type proteinSpec struct {
	id       string
	base     float64
	spiked   bool
	peptides []peptideSpec
}

// Generate builds the table. Output depends only on the config.
func (g *SpikeInGenerator) Generate() (*SpikeInData, error) {
	cfg := g.config
	if cfg.Runs < 1 || cfg.ChannelsPerCondition < 1 || cfg.Proteins < 1 ||
		cfg.PeptidesPerProtein < 1 || cfg.PSMsPerPeptide < 1 {
		return nil, fmt.Errorf("spike-in config needs at least one run, channel, protein, peptide and PSM")
	}
	if cfg.Spiked > cfg.Proteins {
		return nil, fmt.Errorf("cannot spike %d of %d proteins", cfg.Spiked, cfg.Proteins)
	}

	proteins := g.proteins()
	var truth []string
	for _, p := range proteins {
		if p.spiked {
			truth = append(truth, p.id)
		}
	}

	slots := cfg.ChannelsPerCondition
	conditions := []string{cfg.Reference, cfg.Treatment}
	assign := make(map[quant.Sample]string)
	var rows []quant.Row

	for r := 0; r < cfg.Runs; r++ {
		runName := fmt.Sprintf("run%02d", r+1)
		runOffset := g.rng.NormFloat64() * 0.5
		loading := g.slotEffects(slots, 0.3)
		scan := 0

		for c, cond := range conditions {
			for k := 0; k < slots; k++ {
				assign[quant.Sample{Run: runName, Channel: channelName(c*slots + k)}] = cond
			}
		}

		for _, p := range proteins {
			for _, pep := range p.peptides {
				for k := range pep.charges {
					scan++
					noise := g.slotEffects(slots, cfg.Noise)
					missing := g.missingChannels(slots)
					psm := fmt.Sprintf("%s.%05d.%d", runName, scan, pep.charges[k])
					rt := pep.rt + g.rng.NormFloat64()*0.2

					for c, cond := range conditions {
						for s := 0; s < slots; s++ {
							ch := c*slots + s
							v := p.base + pep.effect + runOffset + loading[ch%len(loading)] + noise[ch%len(noise)]
							if c == 1 && p.spiked {
								v += cfg.Effect
							}
							if c == 0 {
								v += pep.shift
							} else {
								v -= pep.shift
							}
							if missing[ch%len(missing)] {
								v = math.NaN()
							} else if !cfg.Scale.Additive() {
								v = math.Exp2(v)
							}
							rows = append(rows, quant.Row{
								Run:           runName,
								Channel:       channelName(ch),
								Condition:     cond,
								Protein:       p.id,
								Peptide:       pep.sequence,
								PSM:           psm,
								Charge:        pep.charges[k],
								RetentionTime: rt,
								Score:         pep.scores[k],
								MassDeviation: pep.massDevs[k],
								Value:         v,
							})
						}
					}
				}
			}
		}
	}

	table, err := quant.NewTable(rows, cfg.Scale, quant.LevelPSM)
	if err != nil {
		return nil, fmt.Errorf("generate spike-in table: %w", err)
	}
	design, err := quant.NewDesign(assign, cfg.Reference)
	if err != nil {
		return nil, fmt.Errorf("generate spike-in design: %w", err)
	}
	return &SpikeInData{Table: table, Design: design, Truth: evaluation.NewGroundTruth(truth...)}, nil
}

// proteins draws the protein and peptide layout shared by every run.
func (g *SpikeInGenerator) proteins() []proteinSpec {
	cfg := g.config
	spiked := make(map[int]bool, cfg.Spiked)
	for _, i := range g.rng.Perm(cfg.Proteins)[:cfg.Spiked] {
		spiked[i] = true
	}

	out := make([]proteinSpec, cfg.Proteins)
	for i := range out {
		p := proteinSpec{
			id:     fmt.Sprintf("P%05d", i+1),
			base:   14 + g.rng.Float64()*8,
			spiked: spiked[i],
		}
		for j := 0; j < cfg.PeptidesPerProtein; j++ {
			p.peptides = append(p.peptides, g.peptide(cfg.PSMsPerPeptide, false))
		}
		if p.spiked && cfg.Interference {
			pep := g.peptide(1, true)
			pep.shift = cfg.Effect * float64(cfg.PeptidesPerProtein*cfg.PSMsPerPeptide) / 2
			p.peptides = append(p.peptides, pep)
		}
		out[i] = p
	}
	return out
}

func (g *SpikeInGenerator) peptide(psms int, interfering bool) peptideSpec {
	pep := peptideSpec{
		sequence: g.sequence(),
		effect:   g.rng.NormFloat64(),
		rt:       10 + g.rng.Float64()*100,
	}
	for k := 0; k < psms; k++ {
		charge := 2 + g.rng.Intn(2)
		score := 40 + g.rng.Float64()*60
		massDev := g.rng.NormFloat64() * 2
		if interfering {
			charge = 4
			score = 15 + g.rng.Float64()*10
			massDev = 8 + g.rng.Float64()*4
		}
		pep.charges = append(pep.charges, charge)
		pep.scores = append(pep.scores, score)
		pep.massDevs = append(pep.massDevs, massDev)
	}
	return pep
}

// sequence returns a unique tryptic-looking peptide sequence.
func (g *SpikeInGenerator) sequence() string {
	for {
		n := 7 + g.rng.Intn(14)
		var b strings.Builder
		for i := 0; i < n-1; i++ {
			b.WriteByte(aminoAcids[g.rng.Intn(len(aminoAcids))])
		}
		b.WriteByte("KR"[g.rng.Intn(2)])
		s := b.String()
		if !g.seqs[s] {
			g.seqs[s] = true
			return s
		}
	}
}

// slotEffects draws one effect per slot when mirrored, else one per channel.
func (g *SpikeInGenerator) slotEffects(slots int, sd float64) []float64 {
	n := slots
	if !g.config.Mirrored {
		n = 2 * slots
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = g.rng.NormFloat64() * sd
	}
	return out
}

// missingChannels follows the same slot/channel split as slotEffects.
func (g *SpikeInGenerator) missingChannels(slots int) []bool {
	n := slots
	if !g.config.Mirrored {
		n = 2 * slots
	}
	out := make([]bool, n)
	if g.config.MissingRate <= 0 {
		return out
	}
	for i := range out {
		out[i] = g.rng.Float64() < g.config.MissingRate
	}
	return out
}

// channelName uses TMT reporter ion labels for the first channels.
func channelName(i int) string {
	labels := []string{"126", "127N", "127C", "128N", "128C", "129N", "129C", "130N", "130C", "131N", "131C"}
	if i < len(labels) {
		return labels[i]
	}
	return fmt.Sprintf("ch%02d", i+1)
}

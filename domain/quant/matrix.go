package quant

import "math"

// Matrix is a feature x sample view of a Table, either local to one run or
// cross-run (Run == ""). Missing cells are NaN.
type Matrix struct {
	Run      string
	Features []Feature
	Samples  []Sample
	Data     [][]float64
	Scale    Scale
}

// NewMatrix allocates a NaN-filled matrix.
func NewMatrix(run string, features []Feature, samples []Sample, scale Scale) Matrix {
	data := make([][]float64, len(features))
	for i := range data {
		row := make([]float64, len(samples))
		for j := range row {
			row[j] = math.NaN()
		}
		data[i] = row
	}
	return Matrix{Run: run, Features: features, Samples: samples, Data: data, Scale: scale}
}

// Dims returns the number of features and samples.
func (m Matrix) Dims() (int, int) {
	return len(m.Features), len(m.Samples)
}

// Clone deep-copies the matrix so strategies never alias their input.
func (m Matrix) Clone() Matrix {
	features := make([]Feature, len(m.Features))
	copy(features, m.Features)
	samples := make([]Sample, len(m.Samples))
	copy(samples, m.Samples)
	data := make([][]float64, len(m.Data))
	for i, row := range m.Data {
		data[i] = append([]float64(nil), row...)
	}
	return Matrix{Run: m.Run, Features: features, Samples: samples, Data: data, Scale: m.Scale}
}

// Row returns a copy of row i.
func (m Matrix) Row(i int) []float64 {
	return append([]float64(nil), m.Data[i]...)
}

// Column returns a copy of column j.
func (m Matrix) Column(j int) []float64 {
	out := make([]float64, len(m.Data))
	for i := range m.Data {
		out[i] = m.Data[i][j]
	}
	return out
}

// SetColumn overwrites column j.
func (m Matrix) SetColumn(j int, values []float64) {
	for i := range m.Data {
		m.Data[i][j] = values[i]
	}
}

// Observed counts the non-missing cells.
func (m Matrix) Observed() int {
	n := 0
	for _, row := range m.Data {
		for _, v := range row {
			if !math.IsNaN(v) {
				n++
			}
		}
	}
	return n
}

func (m Matrix) featureIndex() map[Feature]int {
	out := make(map[Feature]int, len(m.Features))
	for i, f := range m.Features {
		out[f] = i
	}
	return out
}

func (m Matrix) sampleIndex() map[Sample]int {
	out := make(map[Sample]int, len(m.Samples))
	for j, s := range m.Samples {
		out[s] = j
	}
	return out
}

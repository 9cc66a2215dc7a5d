package run

import (
	"isoquant/domain/core"
)

// RunFingerprint ensures deterministic replay: identical inputs and strategy
// choices produce the same fingerprint, which keys cached results.
type RunFingerprint struct {
	TableHash    core.TableHash    `json:"table_hash"`
	DesignHash   core.Hash         `json:"design_hash"`
	StrategyHash core.StrategyHash `json:"strategy_hash"`
	Seed         int64             `json:"seed"`
	CodeVersion  string            `json:"code_version"`
	Fingerprint  core.Hash         `json:"fingerprint"`
}

// NewRunFingerprint creates a fingerprint from determinism parameters
func NewRunFingerprint(tableHash core.TableHash, designHash core.Hash, strategyHash core.StrategyHash, seed int64, codeVersion string) RunFingerprint {
	return RunFingerprint{
		TableHash:    tableHash,
		DesignHash:   designHash,
		StrategyHash: strategyHash,
		Seed:         seed,
		CodeVersion:  codeVersion,
		Fingerprint:  computeRunFingerprint(tableHash, designHash, strategyHash, seed, codeVersion),
	}
}

func computeRunFingerprint(tableHash core.TableHash, designHash core.Hash, strategyHash core.StrategyHash, seed int64, codeVersion string) core.Hash {
	return core.NewHasher().
		String(tableHash.String()).
		String(designHash.String()).
		String(strategyHash.String()).
		Int(seed).
		String(codeVersion).
		Sum()
}

// StrategyHashOf hashes the ordered stage choices.
func StrategyHashOf(stages []StageChoice) core.StrategyHash {
	h := core.NewHasher().Int(int64(len(stages)))
	for _, s := range stages {
		h.String(s.Stage).String(s.Strategy).String(core.ComputeStrategyHash(s.Params).String())
	}
	return core.StrategyHash(h.Sum())
}

// Validate checks the fingerprint is complete.
func (f RunFingerprint) Validate() error {
	if f.TableHash == "" {
		return core.NewValidationError("fingerprint", "table_hash cannot be empty")
	}
	if f.StrategyHash == "" {
		return core.NewValidationError("fingerprint", "strategy_hash cannot be empty")
	}
	if f.CodeVersion == "" {
		return core.NewValidationError("fingerprint", "code_version cannot be empty")
	}
	return nil
}

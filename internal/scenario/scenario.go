// Package scenario defines the immutable parameter set that drives indicator
// computation.
package scenario

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

// Scenario holds the weighting and window parameters for one indicator
// configuration. A scenario is identified by the content hash of its
// parameters so downstream consumers can detect changes.
type Scenario struct {
	ID          int64
	Name        string `validate:"required"`
	Description string
	IsDefault   bool

	// Weighted price parameters. The weight sum must be non-zero.
	A decimal.Decimal
	B decimal.Decimal
	C decimal.Decimal
	D decimal.Decimal

	// Channel divisor, must be non-zero.
	E decimal.Decimal

	// Window lengths.
	N1 int `validate:"min=1"`
	N2 int `validate:"min=1"`
	N3 int `validate:"min=1"`
	N4 int `validate:"min=1"`

	Hash string
}

// ConfigError is a fatal pre-run configuration problem. It is raised when a
// scenario or run is validated, never during per-bar computation.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "invalid configuration: " + e.Reason }

// Validate checks the scenario invariants: e != 0, a+b+c+d != 0, all weights
// non-negative and all windows >= 1.
func (s *Scenario) Validate() error {
	if err := validate.Struct(s); err != nil {
		return &ConfigError{Reason: err.Error()}
	}
	if s.E.IsZero() {
		return &ConfigError{Reason: "channel divisor e cannot be 0"}
	}
	for _, w := range []decimal.Decimal{s.A, s.B, s.C, s.D} {
		if w.IsNegative() {
			return &ConfigError{Reason: "weights a,b,c,d must be non-negative"}
		}
	}
	if s.WeightSum().IsZero() {
		return &ConfigError{Reason: "sum of weights a,b,c,d cannot be 0"}
	}
	return nil
}

// WeightSum returns a+b+c+d.
func (s *Scenario) WeightSum() decimal.Decimal {
	return s.A.Add(s.B).Add(s.C).Add(s.D)
}

// MaxWindow returns the largest of N1..N4, the minimum history the indicator
// pipeline needs before it can emit a fully populated record.
func (s *Scenario) MaxWindow() int {
	max := s.N1
	for _, n := range []int{s.N2, s.N3, s.N4} {
		if n > max {
			max = n
		}
	}
	return max
}

// ComputeHash returns the SHA-256 of the canonical JSON encoding of the
// parameters. Keys are fixed so the hash is stable across runs.
func (s *Scenario) ComputeHash() string {
	canonical := struct {
		A  string `json:"a"`
		B  string `json:"b"`
		C  string `json:"c"`
		D  string `json:"d"`
		E  string `json:"e"`
		N1 int    `json:"n1"`
		N2 int    `json:"n2"`
		N3 int    `json:"n3"`
		N4 int    `json:"n4"`
	}{
		A: s.A.String(), B: s.B.String(), C: s.C.String(), D: s.D.String(),
		E: s.E.String(), N1: s.N1, N2: s.N2, N3: s.N3, N4: s.N4,
	}
	data, err := json.Marshal(canonical)
	if err != nil {
		// Marshalling a struct of strings and ints cannot fail.
		panic(fmt.Sprintf("scenario hash: %v", err))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

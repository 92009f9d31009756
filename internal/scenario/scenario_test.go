package scenario

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validScenario() *Scenario {
	one := decimal.NewFromInt(1)
	return &Scenario{
		Name: "default",
		A:    one, B: one, C: one, D: one,
		E:  decimal.NewFromInt(2),
		N1: 5, N2: 3, N3: 10, N4: 20,
	}
}

func TestValidateOK(t *testing.T) {
	require.NoError(t, validScenario().Validate())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Scenario)
	}{
		{"zero divisor", func(s *Scenario) { s.E = decimal.Zero }},
		{"zero weight sum", func(s *Scenario) {
			s.A, s.B, s.C, s.D = decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
		}},
		{"negative weight", func(s *Scenario) { s.B = decimal.NewFromInt(-1) }},
		{"window below one", func(s *Scenario) { s.N3 = 0 }},
		{"missing name", func(s *Scenario) { s.Name = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validScenario()
			tt.mutate(s)
			err := s.Validate()
			require.Error(t, err)
			var cfgErr *ConfigError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestMaxWindow(t *testing.T) {
	s := validScenario()
	assert.Equal(t, 20, s.MaxWindow())
	s.N1 = 50
	assert.Equal(t, 50, s.MaxWindow())
}

func TestComputeHashStable(t *testing.T) {
	a := validScenario()
	b := validScenario()
	b.Name = "renamed"
	b.Description = "cosmetics only"

	// The hash covers parameters, not identity fields.
	assert.Equal(t, a.ComputeHash(), b.ComputeHash())

	b.N2 = 4
	assert.NotEqual(t, a.ComputeHash(), b.ComputeHash())
}

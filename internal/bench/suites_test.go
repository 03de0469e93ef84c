package bench

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/enginebench/internal/errors"
)

func names(cases []Case) []string {
	out := make([]string, len(cases))
	for i, c := range cases {
		out[i] = c.Name
	}
	return out
}

func TestCasesDefaultToLiteralQ6(t *testing.T) {
	cases, err := Cases(SuiteOptions{TPCHSizes: []int{1}, SweepRows: 100, SweepPoints: 4})
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, "TPC-H_Q6_literal", cases[0].Name)
	assert.Nil(t, cases[0].Dataset)
}

func TestTPCHCasesGroupBySize(t *testing.T) {
	cases, err := Cases(SuiteOptions{TPCH: true, TPCHSizes: []int{1, 10}})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"TPC-H_Q1_1MB", "TPC-H_Q3_1MB", "TPC-H_Q6_1MB", "TPC-H_Q9_1MB", "TPC-H_Q18_1MB",
		"TPC-H_Q1_10MB", "TPC-H_Q3_10MB", "TPC-H_Q6_10MB", "TPC-H_Q9_10MB", "TPC-H_Q18_10MB",
	}, names(cases))

	for i := 1; i < len(cases); i++ {
		if cases[i].Dataset.Identity() != cases[i-1].Dataset.Identity() {
			assert.Equal(t, 5, i, "the dataset changes once")
		}
	}
}

func TestSweepCases(t *testing.T) {
	cases, err := Cases(SuiteOptions{
		SelectSelectivity: true,
		SelectRandomness:  true,
		TPCHClustered:     true,
		TPCHSizes:         []int{1},
		SweepRows:         1000,
		SweepPoints:       5,
	})
	require.NoError(t, err)

	var clustered, selectivity, randomness []string
	for _, c := range cases {
		switch {
		case strings.HasPrefix(c.Name, "TPC-H_Q6_clustered_1MB/"):
			clustered = append(clustered, c.Name)
		case strings.HasPrefix(c.Name, "select_selectivity_uniform_dis/"):
			selectivity = append(selectivity, c.Name)
		case strings.HasPrefix(c.Name, "select_randomness_sorted_dis/"):
			randomness = append(randomness, c.Name)
		}
	}
	require.Len(t, clustered, 5)
	assert.Equal(t, "TPC-H_Q6_clustered_1MB/1", clustered[0])
	assert.Equal(t, "TPC-H_Q6_clustered_1MB/1000", clustered[4])

	require.Len(t, selectivity, 5)
	assert.Equal(t, "select_selectivity_uniform_dis/1", selectivity[0])
	assert.Equal(t, "select_selectivity_uniform_dis/10000", selectivity[4])

	assert.Equal(t, []string{
		"select_randomness_sorted_dis/0",
		"select_randomness_sorted_dis/25",
		"select_randomness_sorted_dis/50",
		"select_randomness_sorted_dis/75",
		"select_randomness_sorted_dis/100",
	}, randomness)
	assert.NotContains(t, names(cases), "TPC-H_Q6_literal", "literal Q6 only runs when selected or nothing is")
}

func TestSweepCasesRejectBadPoints(t *testing.T) {
	_, err := Cases(SuiteOptions{SelectSelectivity: true, SweepPoints: 0})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))
}

func TestPercentSweep(t *testing.T) {
	assert.Equal(t, []float64{100}, percentSweep(1))
	assert.Equal(t, []float64{0, 100}, percentSweep(2))
	assert.Equal(t, []float64{0, 50, 100}, percentSweep(3))
}

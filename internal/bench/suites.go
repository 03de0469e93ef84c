package bench

import (
	"fmt"

	"github.com/arkilian/enginebench/internal/datagen"
	"github.com/arkilian/enginebench/internal/errors"
)

// SuiteOptions select the cases of a run.
type SuiteOptions struct {
	TPCH              bool
	TPCHClustered     bool
	SelectSelectivity bool
	SelectRandomness  bool
	LiteralQ6         bool

	// TPCHSizes are the dataset sizes in MB of the TPC-H suites.
	TPCHSizes []int
	// SweepRows is the row count of the synthetic sweep tables and the
	// largest spread of the clustering sweep.
	SweepRows int
	// SweepPoints is the number of parameter values of each sweep.
	SweepPoints int
}

// Any reports whether a suite is selected.
func (o SuiteOptions) Any() bool {
	return o.TPCH || o.TPCHClustered || o.SelectSelectivity || o.SelectRandomness || o.LiteralQ6
}

// Cases builds the cases of the selected suites. With no suite selected only
// the literal Q6 case runs. Cases sharing a dataset are adjacent so that each
// dataset is installed once.
func Cases(o SuiteOptions) ([]Case, error) {
	if !o.Any() {
		o.LiteralQ6 = true
	}
	var cases []Case

	if o.LiteralQ6 {
		cases = append(cases, Case{Name: "TPC-H_Q6_literal", Template: LiteralQ6()})
	}

	if o.TPCH {
		for _, size := range o.TPCHSizes {
			ds := TPCH{SizeMB: size}
			for _, q := range TPCHQueries {
				cases = append(cases, Case{
					Name:     fmt.Sprintf("TPC-H_Q%d_%dMB", q, size),
					Dataset:  ds,
					Template: TPCHQuery(q),
				})
			}
		}
	}

	if o.TPCHClustered {
		spreads, err := datagen.LogScale[int](o.SweepPoints, 1, float64(o.SweepRows))
		if err != nil {
			return nil, errors.NewConfigError(errors.CodeInvalidConfig, "clustering sweep: "+err.Error())
		}
		for _, size := range o.TPCHSizes {
			for _, spread := range spreads {
				cases = append(cases, Case{
					Name:     fmt.Sprintf("TPC-H_Q6_clustered_%dMB/%d", size, spread),
					Dataset:  ClusteredLineitem{SizeMB: size, Spread: spread},
					Template: ClusteredQ6(),
				})
			}
		}
	}

	if o.SelectSelectivity {
		thresholds, err := datagen.LogScale[int64](o.SweepPoints, syntheticMin, syntheticMax)
		if err != nil {
			return nil, errors.NewConfigError(errors.CodeInvalidConfig, "selectivity sweep: "+err.Error())
		}
		ds := Uniform{Rows: o.SweepRows}
		for _, threshold := range thresholds {
			cases = append(cases, Case{
				Name:     fmt.Sprintf("select_selectivity_uniform_dis/%d", threshold),
				Dataset:  ds,
				Template: SelectBelow(UniformTable, threshold),
			})
		}
	}

	if o.SelectRandomness {
		for _, percent := range percentSweep(o.SweepPoints) {
			cases = append(cases, Case{
				Name:     fmt.Sprintf("select_randomness_sorted_dis/%g", percent),
				Dataset:  PartiallySorted{Rows: o.SweepRows, PercentRandom: percent},
				Template: SelectBelow(PartiallySortedTable, 51),
			})
		}
	}
	return cases, nil
}

// percentSweep returns points evenly spaced percentages from 0 to 100.
func percentSweep(points int) []float64 {
	if points < 2 {
		return []float64{100}
	}
	out := make([]float64, points)
	for i := range out {
		out[i] = 100 * float64(i) / float64(points-1)
	}
	return out
}

package bench

import (
	"context"
	"fmt"

	"github.com/arkilian/enginebench/internal/cluster"
	"github.com/arkilian/enginebench/internal/datagen"
	"github.com/arkilian/enginebench/internal/errors"
	"github.com/arkilian/enginebench/pkg/expr"
)

// Synthetic table names.
const (
	UniformTable         expr.Symbol = "UNIFORM_DIS"
	PartiallySortedTable expr.Symbol = "PARTIALLY_SORTED_DIS"
)

const (
	keyColumn     expr.Symbol = "key"
	payloadColumn expr.Symbol = "payload"
)

// Value range of the synthetic key and payload columns.
const (
	syntheticMin = 1
	syntheticMax = 10000
)

// partiallySortedRepeats is how many times each key repeats within a
// sawtooth section.
const partiallySortedRepeats = 10

// loadKeyPayload installs name as a two-column table built from generated
// data. The table is created without columns and takes its schema from the
// data.
func loadKeyPayload(s *Session, name expr.Symbol, keys, payload []int64) {
	s.Storage(expr.New(expr.CreateTable, name))
	s.Storage(expr.New(expr.LoadDataTable, name, expr.NewTable(expr.Data,
		expr.NewColumn(keyColumn, expr.NewBuffer(keys)),
		expr.NewColumn(payloadColumn, expr.NewBuffer(payload)))))
}

// Uniform is the selectivity sweep table: Rows uniform keys and payloads.
type Uniform struct {
	Rows int
}

// Identity implements Dataset.
func (d Uniform) Identity() Identity {
	return Identity{Dataset: "selectivity_sweep_uniform_dis", Size: d.Rows}
}

// Tables implements Dataset.
func (d Uniform) Tables() []expr.Symbol { return []expr.Symbol{UniformTable} }

// Install implements Dataset.
func (d Uniform) Install(_ context.Context, s *Session) error {
	keys, err := datagen.Uniform[int64](d.Rows, syntheticMin, syntheticMax)
	if err != nil {
		return errors.NewDatasetError(errors.CodeGenerate, "uniform keys", err)
	}
	payload, err := datagen.Uniform[int64](d.Rows, syntheticMin, syntheticMax)
	if err != nil {
		return errors.NewDatasetError(errors.CodeGenerate, "uniform payload", err)
	}
	loadKeyPayload(s, UniformTable, keys, payload)
	return nil
}

// PartiallySorted is the randomness sweep table: sawtooth keys in [1, 100]
// of which PercentRandom percent are shuffled, and uniform payloads.
type PartiallySorted struct {
	Rows          int
	PercentRandom float64
}

// Identity implements Dataset.
func (d PartiallySorted) Identity() Identity {
	return Identity{Dataset: "randomness_sweep_sorted_dis", Size: d.Rows, Param: d.PercentRandom}
}

// Tables implements Dataset.
func (d PartiallySorted) Tables() []expr.Symbol { return []expr.Symbol{PartiallySortedTable} }

// Install implements Dataset.
func (d PartiallySorted) Install(_ context.Context, s *Session) error {
	keys, err := datagen.PartiallySorted[int64](d.Rows, partiallySortedRepeats, d.PercentRandom)
	if err != nil {
		return errors.NewDatasetError(errors.CodeGenerate, "partially sorted keys", err)
	}
	payload, err := datagen.Uniform[int64](d.Rows, syntheticMin, syntheticMax)
	if err != nil {
		return errors.NewDatasetError(errors.CodeGenerate, "uniform payload", err)
	}
	loadKeyPayload(s, PartiallySortedTable, keys, payload)
	return nil
}

// ClusteredLineitem holds LINEITEM of one size and a copy of it,
// LINEITEM_CLUSTERED, whose rows are reordered so that each row stays within
// Spread positions of its neighbours in the file.
type ClusteredLineitem struct {
	SizeMB int
	Spread int
}

// Identity implements Dataset.
func (d ClusteredLineitem) Identity() Identity {
	return Identity{Dataset: "tpch_q6_clustering_sweep", Size: d.SizeMB, Param: float64(d.Spread)}
}

// Tables implements Dataset.
func (d ClusteredLineitem) Tables() []expr.Symbol { return []expr.Symbol{Lineitem, Clustered} }

// Install implements Dataset.
func (d ClusteredLineitem) Install(ctx context.Context, s *Session) error {
	key := tpchKey(d.SizeMB, Lineitem)
	path, err := resolve(ctx, s, key)
	if err != nil {
		return errors.NewDatasetError(errors.CodeMissingTable, "lineitem data file", err)
	}
	loadTable(s, tableSchema{name: Lineitem, columns: lineitemColumns}, key, path)
	return d.cluster(ctx, s)
}

// Refresh implements Refresher: LINEITEM is kept and only the clustered copy
// is rebuilt.
func (d ClusteredLineitem) Refresh(ctx context.Context, s *Session) error {
	s.Storage(expr.New(expr.DropTable, Clustered))
	return d.cluster(ctx, s)
}

func (d ClusteredLineitem) cluster(ctx context.Context, s *Session) error {
	original := s.dispatcher.EvaluateStorage(Lineitem)
	table, ok := original.(*expr.Complex)
	if !ok || Failed(original) {
		s.logger.Errorf("Error: %s", original)
		return errors.NewDatasetError(errors.CodeMissingTable,
			fmt.Sprintf("%s is not available for clustering", Lineitem), nil)
	}

	path, err := s.Data().Path(ctx, tpchKey(d.SizeMB, Lineitem))
	if err != nil {
		return errors.NewDatasetError(errors.CodeMissingTable, "lineitem data file", err)
	}
	n := CountRows(path)
	perm, err := cluster.Order(n, cluster.ClampSpread(d.Spread, n))
	if err != nil {
		return errors.NewDatasetError(errors.CodeGenerate, "clustering order", err)
	}
	data, err := cluster.Reorder(table, perm)
	if err != nil {
		return errors.NewDatasetError(errors.CodeGenerate, "clustering reorder", err)
	}

	s.Storage(expr.New(expr.CreateTable, Clustered))
	s.Storage(expr.New(expr.LoadDataTable, Clustered, data))
	return nil
}

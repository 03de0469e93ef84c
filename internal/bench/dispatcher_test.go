package bench

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/enginebench/internal/errors"
	"github.com/arkilian/enginebench/pkg/expr"
)

func TestNewDispatcherRequiresLibraries(t *testing.T) {
	_, err := NewDispatcher(&recordingBoundary{}, nil)
	require.Error(t, err)
	assert.Equal(t, errors.CodeNoEngines, errors.GetCode(err))
}

func TestDispatcherRouting(t *testing.T) {
	b := &recordingBoundary{}
	libs := []string{"storage", "compute"}
	d, err := NewDispatcher(b, libs)
	require.NoError(t, err)
	libs[0] = "mutated"

	d.Evaluate(expr.Symbol("q"))
	d.EvaluateStorage(expr.New(expr.DropTable, expr.Symbol("T")))
	d.Release()

	assert.Equal(t, []string{"storage", "compute"}, d.Libraries())
	assert.Equal(t, [][]string{{"storage", "compute"}, {"storage"}}, b.engines)
	assert.Equal(t, []string{"q", "DropTable T", "ReleaseEngines storage,compute"}, b.journal)
}

func TestFailed(t *testing.T) {
	tests := []struct {
		name   string
		result expr.Expression
		failed bool
	}{
		{"table", table(), false},
		{"list", expr.New(expr.List, expr.Int(1)), false},
		{"atom", expr.Bool(true), false},
		{"symbol", expr.Symbol("LINEITEM"), false},
		{"error", expr.NewError(expr.Symbol("Group"), "boom"), true},
		{"unevaluated", expr.New("Select", expr.Symbol("T")), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.failed, Failed(tt.result))
		})
	}
}

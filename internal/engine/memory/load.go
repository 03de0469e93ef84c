package memory

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/arkilian/enginebench/pkg/expr"
)

// fieldSeparator separates fields in .tbl files. Lines may end with a
// trailing separator.
const fieldSeparator = "|"

// load handles Load[T, path].
func (e *Engine) load(c *expr.Complex) error {
	name, err := tableName(c)
	if err != nil {
		return err
	}
	t, ok := e.tables[name]
	if !ok {
		return fmt.Errorf("unknown table %s", name)
	}
	if c.NumArgs() != 2 {
		return fmt.Errorf("Load expects a table name and a path")
	}
	path, ok := c.Arg(1).(expr.String)
	if !ok {
		return fmt.Errorf("Load expects a path string, got %v", c.Arg(1))
	}
	if len(t.columns) == 0 {
		return fmt.Errorf("table %s has no columns", name)
	}

	fields, err := readTbl(string(path), len(t.columns))
	if err != nil {
		return err
	}
	cols := make([]expr.Span, len(fields))
	for i, f := range fields {
		cols[i] = inferColumn(f)
	}
	e.logger.WithField("table", name).WithField("rows", len(fields[0])).Debug("loaded table")
	if err := t.appendColumns(cols); err != nil {
		releaseSpans(cols...)
		return err
	}
	return nil
}

// readTbl reads a separator-delimited file into one string slice per column.
func readTbl(path string, numColumns int) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cols := make([][]string, numColumns)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSuffix(scanner.Text(), "\r")
		if text == "" {
			continue
		}
		text = strings.TrimSuffix(text, fieldSeparator)
		parts := strings.Split(text, fieldSeparator)
		if len(parts) != numColumns {
			return nil, fmt.Errorf("%s:%d: expected %d fields, got %d", path, line, numColumns, len(parts))
		}
		for i, p := range parts {
			cols[i] = append(cols[i], p)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return cols, nil
}

// inferColumn picks the narrowest type every value parses as: int64, then
// float64, then date (as days since epoch), falling back to string.
func inferColumn(values []string) expr.Span {
	if ints, ok := parseAll(values, func(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }); ok {
		return expr.NewBuffer(ints)
	}
	if floats, ok := parseAll(values, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) }); ok {
		return expr.NewBuffer(floats)
	}
	if dates, ok := parseAll(values, parseDate); ok {
		return expr.NewBuffer(dates)
	}
	return expr.NewBuffer(values)
}

func parseAll[T expr.Element](values []string, parse func(string) (T, error)) ([]T, bool) {
	if len(values) == 0 {
		return nil, false
	}
	out := make([]T, len(values))
	for i, v := range values {
		x, err := parse(v)
		if err != nil {
			return nil, false
		}
		out[i] = x
	}
	return out, true
}

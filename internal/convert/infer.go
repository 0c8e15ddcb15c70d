package convert

import (
	"math"
	"strconv"
	"strings"
)

// ColumnType is the inferred scalar type of a CSV column.
type ColumnType int

// Column types, from most to least specific.
const (
	TypeInt ColumnType = iota
	TypeFloat
	TypeString
)

// inferSampleRows caps how many rows are scanned per column when inferring
// its type.
const inferSampleRows = 100

// inferColumnTypes scans a sample of rows and picks the narrowest type that
// every non-empty sampled value satisfies. A column with no non-empty values
// in the sample stays a string column.
func inferColumnTypes(rows [][]string, cols int) []ColumnType {
	types := make([]ColumnType, cols)
	for col := 0; col < cols; col++ {
		allInt := true
		allFloat := true
		seen := false
		for i, row := range rows {
			if i >= inferSampleRows {
				break
			}
			if col >= len(row) {
				continue
			}
			v := strings.TrimSpace(row[col])
			if v == "" {
				continue
			}
			seen = true
			if allInt {
				if _, err := strconv.ParseInt(v, 10, 64); err != nil {
					allInt = false
				}
			}
			if allFloat {
				if _, err := strconv.ParseFloat(v, 64); err != nil {
					allFloat = false
				}
			}
			if !allInt && !allFloat {
				break
			}
		}
		switch {
		case !seen:
			types[col] = TypeString
		case allInt:
			types[col] = TypeInt
		case allFloat:
			types[col] = TypeFloat
		default:
			types[col] = TypeString
		}
	}
	return types
}

// coerceValue applies the inferred column type to a single cell. Empty cells
// become nil regardless of type; a cell that fails to parse under the column
// type falls back to its raw string form.
func coerceValue(raw string, t ColumnType) any {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	switch t {
	case TypeInt:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	case TypeFloat:
		// NaN and the infinities parse as floats but have no JSON
		// representation; they stay raw strings.
		if f, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f
		}
	}
	return v
}

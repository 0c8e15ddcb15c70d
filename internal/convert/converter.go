// Package convert turns tabular source files into JSON arrays of typed row
// objects, with per-column type inference.
package convert

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/aperez/iattc-monitor/internal/monitor"
)

// Converter writes one JSON file per tabular source into outDir.
type Converter struct {
	outDir string
	hasher monitor.Hasher
	logger *zap.Logger
}

// NewConverter constructs a Converter.
func NewConverter(outDir string, hasher monitor.Hasher, logger *zap.Logger) *Converter {
	return &Converter{outDir: outDir, hasher: hasher, logger: logger}
}

// Convert reads srcPath as delimited text and writes a JSON array of row
// objects named after the source file. Degenerate rows degrade gracefully;
// only a missing header row is a hard error.
func (c *Converter) Convert(srcPath string) (monitor.ConvertResult, error) {
	raw, err := os.ReadFile(srcPath)
	if err != nil {
		return monitor.ConvertResult{}, fmt.Errorf("read source %s: %w", srcPath, err)
	}

	checksum, err := c.hasher.Hash(raw)
	if err != nil {
		return monitor.ConvertResult{}, fmt.Errorf("checksum source: %w", err)
	}

	decoded, encName := decodeText(raw)
	if encName != "utf-8" {
		c.logger.Warn("source is not UTF-8, decoded",
			zap.String("source", srcPath),
			zap.String("encoding", encName),
		)
	}

	header, rows, err := c.readRows(srcPath, decoded)
	if err != nil {
		return monitor.ConvertResult{}, err
	}

	types := inferColumnTypes(rows, len(header))
	payload := c.marshalRows(srcPath, header, types, rows)

	outPath := filepath.Join(c.outDir, outputName(srcPath))
	if err := writeAtomic(outPath, payload); err != nil {
		return monitor.ConvertResult{}, err
	}

	c.logger.Info("converted tabular source",
		zap.String("source", srcPath),
		zap.String("output", outPath),
		zap.Int("rows", len(rows)),
	)
	return monitor.ConvertResult{OutputPath: outPath, Rows: len(rows), Checksum: checksum}, nil
}

func (c *Converter) readRows(srcPath string, decoded []byte) ([]string, [][]string, error) {
	r := csv.NewReader(bytes.NewReader(decoded))
	r.Comma = sniffDelimiter(decoded)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var header []string
	var rows [][]string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			c.logger.Warn("skipping unreadable row",
				zap.String("source", srcPath),
				zap.Error(err),
			)
			continue
		}
		if header == nil {
			header = cleanHeader(record)
			continue
		}
		rows = append(rows, record)
	}
	if header == nil {
		return nil, nil, fmt.Errorf("%w: %s has no header row", monitor.ErrParse, srcPath)
	}
	return header, rows, nil
}

// marshalRows emits one compact JSON object per row, preserving the source
// column order. Missing cells become null; surplus cells are dropped.
func (c *Converter) marshalRows(srcPath string, header []string, types []ColumnType, rows [][]string) []byte {
	var buf bytes.Buffer
	buf.WriteString("[")
	warnedRagged := false
	for i, row := range rows {
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n  {")
		if len(row) > len(header) && !warnedRagged {
			c.logger.Warn("rows have more cells than header columns, surplus dropped",
				zap.String("source", srcPath),
				zap.Int("row", i+1),
			)
			warnedRagged = true
		}
		for col, name := range header {
			if col > 0 {
				buf.WriteString(",")
			}
			key, _ := json.Marshal(name)
			buf.Write(key)
			buf.WriteString(":")
			var cell string
			if col < len(row) {
				cell = row[col]
			}
			val, err := json.Marshal(coerceValue(cell, types[col]))
			if err != nil {
				val = []byte("null")
			}
			buf.Write(val)
		}
		buf.WriteString("}")
	}
	buf.WriteString("\n]\n")
	return buf.Bytes()
}

func cleanHeader(record []string) []string {
	header := make([]string, len(record))
	seen := make(map[string]int)
	for i, name := range record {
		name = strings.TrimSpace(name)
		// Strip a UTF-8 BOM that survives decoding on the first cell.
		name = strings.TrimPrefix(name, "\uFEFF")
		if name == "" {
			name = "unnamed_column"
		}
		if n := seen[name]; n > 0 {
			header[i] = fmt.Sprintf("%s_%d", name, n+1)
		} else {
			header[i] = name
		}
		seen[name]++
	}
	return header
}

// sniffDelimiter picks the delimiter with the highest count on the first
// line, defaulting to comma.
func sniffDelimiter(data []byte) rune {
	line := data
	if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
		line = data[:idx]
	}
	best := ','
	bestCount := bytes.Count(line, []byte{','})
	for _, cand := range []byte{';', '\t'} {
		if n := bytes.Count(line, []byte{cand}); n > bestCount {
			best = rune(cand)
			bestCount = n
		}
	}
	return best
}

func outputName(srcPath string) string {
	base := filepath.Base(srcPath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".json"
}

// writeAtomic stages the payload next to the target and renames into place,
// so consumers never observe a half-written output file.
func writeAtomic(path string, payload []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return fmt.Errorf("write output staging file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace output %s: %w", path, err)
	}
	return nil
}

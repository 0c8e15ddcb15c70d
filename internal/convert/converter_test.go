package convert

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aperez/iattc-monitor/internal/hash/sha256"
	"github.com/aperez/iattc-monitor/internal/monitor"
)

func newConverter(t *testing.T) (*Converter, string) {
	t.Helper()
	outDir := t.TempDir()
	return NewConverter(outDir, sha256.New(), zap.NewNop()), outDir
}

func writeSource(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.csv")
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func decodeOutput(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(data, &rows))
	return rows
}

func TestConvertTypedColumns(t *testing.T) {
	t.Parallel()

	c, outDir := newConverter(t)
	src := writeSource(t, []byte("Species,Count,Weight,Flag\nYFT,12,100.5,MEX\nSKJ,7,88,USA\n"))

	res, err := c.Convert(src)
	require.NoError(t, err)
	require.Equal(t, 2, res.Rows)
	require.Equal(t, filepath.Join(outDir, "sample.json"), res.OutputPath)
	require.NotEmpty(t, res.Checksum)

	rows := decodeOutput(t, res.OutputPath)
	require.Len(t, rows, 2)
	// json.Unmarshal decodes all numbers as float64.
	require.Equal(t, "YFT", rows[0]["Species"])
	require.Equal(t, float64(12), rows[0]["Count"])
	require.Equal(t, 100.5, rows[0]["Weight"])
	require.Equal(t, "MEX", rows[0]["Flag"])
}

func TestConvertEmptyCellsBecomeNull(t *testing.T) {
	t.Parallel()

	c, _ := newConverter(t)
	src := writeSource(t, []byte("a,b\n1,\n,2\n"))

	res, err := c.Convert(src)
	require.NoError(t, err)

	rows := decodeOutput(t, res.OutputPath)
	require.Len(t, rows, 2)
	require.Equal(t, float64(1), rows[0]["a"])
	require.Nil(t, rows[0]["b"])
	require.Nil(t, rows[1]["a"])
	require.Equal(t, float64(2), rows[1]["b"])
}

func TestConvertTypeFallbackToRawString(t *testing.T) {
	t.Parallel()

	// Column samples as integer over the first rows, then a late row breaks
	// the inferred type and must fall back to its raw string.
	c, _ := newConverter(t)
	content := "n\n"
	for i := 0; i < inferSampleRows; i++ {
		content += "1\n"
	}
	content += "oops\n"
	src := writeSource(t, []byte(content))

	res, err := c.Convert(src)
	require.NoError(t, err)
	require.Equal(t, inferSampleRows+1, res.Rows)

	rows := decodeOutput(t, res.OutputPath)
	require.Equal(t, float64(1), rows[0]["n"])
	require.Equal(t, "oops", rows[len(rows)-1]["n"])
}

func TestConvertLatin1Source(t *testing.T) {
	t.Parallel()

	c, _ := newConverter(t)
	// "Bandera,Señal" with Latin-1 encoded ñ (0xF1).
	src := writeSource(t, []byte("Bandera,Se\xf1al\nMEX,A-1\n"))

	res, err := c.Convert(src)
	require.NoError(t, err)

	rows := decodeOutput(t, res.OutputPath)
	require.Equal(t, "MEX", rows[0]["Bandera"])
	require.Equal(t, "A-1", rows[0]["Señal"])
}

func TestConvertSemicolonDelimiter(t *testing.T) {
	t.Parallel()

	c, _ := newConverter(t)
	src := writeSource(t, []byte("a;b;c\n1;2;3\n"))

	res, err := c.Convert(src)
	require.NoError(t, err)

	rows := decodeOutput(t, res.OutputPath)
	require.Len(t, rows, 1)
	require.Equal(t, float64(2), rows[0]["b"])
}

func TestConvertRaggedRows(t *testing.T) {
	t.Parallel()

	c, _ := newConverter(t)
	src := writeSource(t, []byte("a,b,c\n1,2\n4,5,6,7\n"))

	res, err := c.Convert(src)
	require.NoError(t, err)
	require.Equal(t, 2, res.Rows)

	rows := decodeOutput(t, res.OutputPath)
	require.Nil(t, rows[0]["c"], "missing trailing cell is null")
	require.Equal(t, float64(4), rows[1]["a"])
	require.Len(t, rows[1], 3, "surplus cells are dropped")
}

func TestConvertEmptyFileIsParseError(t *testing.T) {
	t.Parallel()

	c, _ := newConverter(t)
	src := writeSource(t, nil)

	_, err := c.Convert(src)
	require.ErrorIs(t, err, monitor.ErrParse)
}

func TestConvertHeaderOnlyProducesEmptyArray(t *testing.T) {
	t.Parallel()

	c, _ := newConverter(t)
	src := writeSource(t, []byte("a,b\n"))

	res, err := c.Convert(src)
	require.NoError(t, err)
	require.Equal(t, 0, res.Rows)

	rows := decodeOutput(t, res.OutputPath)
	require.Empty(t, rows)
}

func TestConvertChecksumStableAcrossRuns(t *testing.T) {
	t.Parallel()

	c, _ := newConverter(t)
	src := writeSource(t, []byte("a\n1\n"))

	first, err := c.Convert(src)
	require.NoError(t, err)
	second, err := c.Convert(src)
	require.NoError(t, err)
	require.Equal(t, first.Checksum, second.Checksum)
}

func TestConvertStripsHeaderByteOrderMark(t *testing.T) {
	t.Parallel()

	c, _ := newConverter(t)
	src := writeSource(t, []byte("\xef\xbb\xbfSpecies,Count\nYFT,3\n"))

	res, err := c.Convert(src)
	require.NoError(t, err)

	rows := decodeOutput(t, res.OutputPath)
	require.Contains(t, rows[0], "Species", "BOM must be stripped from the first header cell")
	require.Equal(t, float64(3), rows[0]["Count"])
}

func TestConvertNonFiniteFloatsFallBackToRawString(t *testing.T) {
	t.Parallel()

	c, _ := newConverter(t)
	src := writeSource(t, []byte("v\n1.5\nNaN\n+Inf\n"))

	res, err := c.Convert(src)
	require.NoError(t, err)
	require.Equal(t, 3, res.Rows)

	rows := decodeOutput(t, res.OutputPath)
	require.Equal(t, 1.5, rows[0]["v"])
	require.Equal(t, "NaN", rows[1]["v"])
	require.Equal(t, "+Inf", rows[2]["v"])
}

func TestConvertDuplicateHeaderNames(t *testing.T) {
	t.Parallel()

	c, _ := newConverter(t)
	src := writeSource(t, []byte("a,a,\n1,2,3\n"))

	res, err := c.Convert(src)
	require.NoError(t, err)

	rows := decodeOutput(t, res.OutputPath)
	require.Equal(t, float64(1), rows[0]["a"])
	require.Equal(t, float64(2), rows[0]["a_2"])
	require.Equal(t, float64(3), rows[0]["unnamed_column"])
}

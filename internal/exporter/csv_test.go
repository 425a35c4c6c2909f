package exporter

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"divrec/internal/config"
)

// newTestWriter returns a CSVWriter rooted at a fresh temp directory.
func newTestWriter(t *testing.T) (*CSVWriter, string) {
	t.Helper()
	tempDir := t.TempDir()

	writer := NewCSVWriter(&config.Paths{
		ReportsDir: filepath.Join(tempDir, "reports"),
		CacheDir:   filepath.Join(tempDir, "cache"),
	})
	return writer, tempDir
}

// readCSVFile strips the BOM if present and parses the remaining content.
func readCSVFile(t *testing.T, path string) ([][]string, bool) {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)

	hasBOM := bytes.HasPrefix(content, []byte{0xEF, 0xBB, 0xBF})
	if hasBOM {
		content = content[3:]
	}

	records, err := csv.NewReader(bytes.NewReader(content)).ReadAll()
	require.NoError(t, err)
	return records, hasBOM
}

func TestNewCSVWriter(t *testing.T) {
	paths := &config.Paths{}
	writer := NewCSVWriter(paths)

	assert.NotNil(t, writer)
	assert.Equal(t, paths, writer.paths)
}

func TestCSVWriter_WriteCSV(t *testing.T) {
	t.Run("writes headers and records with BOM", func(t *testing.T) {
		writer, tempDir := newTestWriter(t)

		err := writer.WriteCSV("results.csv", WriteOptions{
			Headers:   []string{"Instrument", "ExDate", "Recovered"},
			Records:   [][]string{{"ACME", "2024-03-12", "true"}, {"BETA", "2024-03-15", "false"}},
			BOMPrefix: true,
		})
		require.NoError(t, err)

		records, hasBOM := readCSVFile(t, filepath.Join(tempDir, "reports", "results.csv"))
		assert.True(t, hasBOM)
		require.Len(t, records, 3)
		assert.Equal(t, []string{"Instrument", "ExDate", "Recovered"}, records[0])
		assert.Equal(t, []string{"ACME", "2024-03-12", "true"}, records[1])
	})

	t.Run("writes without BOM when disabled", func(t *testing.T) {
		writer, tempDir := newTestWriter(t)

		err := writer.WriteCSV("plain.csv", WriteOptions{
			Headers: []string{"A"},
			Records: [][]string{{"1"}},
		})
		require.NoError(t, err)

		_, hasBOM := readCSVFile(t, filepath.Join(tempDir, "reports", "plain.csv"))
		assert.False(t, hasBOM)
	})

	t.Run("truncates on rewrite", func(t *testing.T) {
		writer, tempDir := newTestWriter(t)

		require.NoError(t, writer.WriteSimpleCSV("overwrite.csv", []string{"A"}, [][]string{{"old"}, {"old"}}))
		require.NoError(t, writer.WriteSimpleCSV("overwrite.csv", []string{"A"}, [][]string{{"new"}}))

		records, _ := readCSVFile(t, filepath.Join(tempDir, "reports", "overwrite.csv"))
		require.Len(t, records, 2)
		assert.Equal(t, "new", records[1][0])
	})

	t.Run("creates missing directories", func(t *testing.T) {
		writer, tempDir := newTestWriter(t)

		err := writer.WriteSimpleCSV(filepath.Join("nested", "deep", "file.csv"), []string{"A"}, [][]string{{"1"}})
		require.NoError(t, err)

		assert.FileExists(t, filepath.Join(tempDir, "reports", "nested", "deep", "file.csv"))
	})

	t.Run("empty records writes header only", func(t *testing.T) {
		writer, tempDir := newTestWriter(t)

		err := writer.WriteSimpleCSV("empty.csv", []string{"Instrument", "WinRate"}, nil)
		require.NoError(t, err)

		records, _ := readCSVFile(t, filepath.Join(tempDir, "reports", "empty.csv"))
		require.Len(t, records, 1)
	})

	t.Run("quotes fields containing separators", func(t *testing.T) {
		writer, tempDir := newTestWriter(t)

		err := writer.WriteSimpleCSV("quoted.csv", []string{"Instrument", "Issues"},
			[][]string{{"ACME", `duplicate_ex_date: 2 duplicate ex-dates; high_below_low: 1 rows where high < low`}})
		require.NoError(t, err)

		records, _ := readCSVFile(t, filepath.Join(tempDir, "reports", "quoted.csv"))
		require.Len(t, records, 2)
		assert.Contains(t, records[1][1], ";")
	})
}

func TestCSVWriter_AppendToCSV(t *testing.T) {
	writer, tempDir := newTestWriter(t)

	require.NoError(t, writer.WriteSimpleCSV("append.csv", []string{"Instrument"}, [][]string{{"ACME"}}))
	require.NoError(t, writer.AppendToCSV("append.csv", [][]string{{"BETA"}, {"GAMA"}}))

	records, hasBOM := readCSVFile(t, filepath.Join(tempDir, "reports", "append.csv"))
	assert.True(t, hasBOM)
	require.Len(t, records, 4)
	assert.Equal(t, "GAMA", records[3][0])
}

func TestCSVWriter_ResolvePath(t *testing.T) {
	writer, tempDir := newTestWriter(t)

	tests := []struct {
		name     string
		filePath string
		expected string
	}{
		{
			name:     "relative path defaults to reports",
			filePath: "report.csv",
			expected: filepath.Join(tempDir, "reports", "report.csv"),
		},
		{
			name:     "cache prefix resolves to cache dir",
			filePath: "cache/partial.csv",
			expected: filepath.Join(tempDir, "cache", "partial.csv"),
		},
		{
			name:     "absolute path is untouched",
			filePath: filepath.Join(tempDir, "elsewhere", "abs.csv"),
			expected: filepath.Join(tempDir, "elsewhere", "abs.csv"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, writer.resolvePath(tt.filePath))
		})
	}
}

func TestStreamWriter(t *testing.T) {
	t.Run("streams records after headers", func(t *testing.T) {
		writer, tempDir := newTestWriter(t)

		stream, err := writer.CreateStreamWriter("stream.csv", []string{"Instrument", "ExDate", "Similarity"})
		require.NoError(t, err)

		require.NoError(t, stream.WriteRecord([]string{"ACME", "2024-03-12", "0.91"}))
		require.NoError(t, stream.WriteRecord([]string{"BETA", "2024-01-20", "0.87"}))
		require.NoError(t, stream.Close())

		records, hasBOM := readCSVFile(t, filepath.Join(tempDir, "reports", "stream.csv"))
		assert.True(t, hasBOM)
		require.Len(t, records, 3)
		assert.Equal(t, "0.87", records[2][2])
	})

	t.Run("without headers writes only BOM until records arrive", func(t *testing.T) {
		writer, tempDir := newTestWriter(t)

		stream, err := writer.CreateStreamWriter("bare.csv", nil)
		require.NoError(t, err)
		require.NoError(t, stream.Close())

		content, err := os.ReadFile(filepath.Join(tempDir, "reports", "bare.csv"))
		require.NoError(t, err)
		assert.Equal(t, []byte{0xEF, 0xBB, 0xBF}, content)
	})

	t.Run("close flushes buffered records", func(t *testing.T) {
		writer, tempDir := newTestWriter(t)

		stream, err := writer.CreateStreamWriter("flush.csv", []string{"N"})
		require.NoError(t, err)

		for i := 0; i < 100; i++ {
			require.NoError(t, stream.WriteRecord([]string{strings.Repeat("x", 10)}))
		}
		require.NoError(t, stream.Close())

		records, _ := readCSVFile(t, filepath.Join(tempDir, "reports", "flush.csv"))
		assert.Len(t, records, 101)
	})
}

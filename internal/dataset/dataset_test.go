package dataset

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theblitlabs/parity-ids/internal/testutil"
	"github.com/theblitlabs/parity-ids/internal/utils/errorutil"
)

func TestLoad(t *testing.T) {
	testutil.DisableLogging()

	t.Run("valid csv", func(t *testing.T) {
		ds, err := Load(strings.NewReader("\ufeffa, b ,label\n1,x,normal\n2,y,attack\n"))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "label"}, ds.Columns)
		assert.Equal(t, 2, ds.NumRows())
		assert.Equal(t, 3, ds.NumColumns())
		assert.Equal(t, map[string]string{"a": "2", "b": "y", "label": "attack"}, ds.Record(1))

		idx, ok := ds.ColumnIndex("label")
		assert.True(t, ok)
		assert.Equal(t, 2, idx)
		_, ok = ds.ColumnIndex("missing")
		assert.False(t, ok)
	})

	tests := []struct {
		name  string
		input string
	}{
		{"empty input", ""},
		{"header only", "a,b,label\n"},
		{"ragged row", "a,b,label\n1,2,0\n1,2\n"},
		{"duplicate column", "a,a,label\n1,2,0\n"},
		{"empty column name", "a,,label\n1,2,0\n"},
		{"unterminated quote", "a,b,label\n\"1,2,0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := Load(strings.NewReader(tt.input))
			assert.Nil(t, ds)
			assert.True(t, errors.Is(err, errorutil.ErrDatasetLoad), "got %v", err)
		})
	}
}

func TestLoadCSV(t *testing.T) {
	testutil.DisableLogging()

	t.Run("file on disk", func(t *testing.T) {
		path := testutil.WriteFile(t, "traffic.csv", testutil.TrafficCSV(30, 3, 1))
		ds, err := LoadCSV(path)
		require.NoError(t, err)
		assert.Equal(t, 30, ds.NumRows())
		assert.Equal(t, 7, ds.NumColumns())
		assert.Equal(t, "dataset(30 rows x 7 columns)", ds.String())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadCSV(filepath.Join(t.TempDir(), "absent.csv"))
		assert.ErrorIs(t, err, errorutil.ErrDatasetLoad)
	})
}

func TestIsMissing(t *testing.T) {
	for _, cell := range []string{"", "  ", "NA", "nan", "NaN", "n/a", "NULL", "None"} {
		assert.True(t, IsMissing(cell), "%q", cell)
	}
	for _, cell := range []string{"0", "tcp", "-", "none_flag"} {
		assert.False(t, IsMissing(cell), "%q", cell)
	}
}

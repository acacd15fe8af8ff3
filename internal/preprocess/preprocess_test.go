package preprocess

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theblitlabs/parity-ids/internal/dataset"
	"github.com/theblitlabs/parity-ids/internal/testutil"
	"github.com/theblitlabs/parity-ids/internal/utils/errorutil"
)

func load(t *testing.T, content string) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.Load(strings.NewReader(content))
	require.NoError(t, err)
	return ds
}

func TestPreprocess(t *testing.T) {
	testutil.DisableLogging()

	t.Run("categorical features and target", func(t *testing.T) {
		ds := load(t, "proto,bytes,flag,label\n"+
			"tcp,10,SF,normal\n"+
			"udp,20,S0,attack\n"+
			"tcp,,SF,normal\n"+
			"icmp,30,SF,normal\n")

		res, err := Preprocess(ds, "label")
		require.NoError(t, err)

		assert.Equal(t, []string{"proto", "bytes", "flag"}, res.Features)
		assert.Equal(t, []string{"attack", "normal"}, res.Classes)
		assert.Equal(t, 2, res.NumClasses())
		// icmp=0 tcp=1 udp=2; S0=0 SF=1
		assert.Equal(t, [][]float64{{1, 10, 1}, {2, 20, 0}, {0, 30, 1}}, res.X)
		assert.Equal(t, []int{1, 0, 1}, res.Y)

		require.Contains(t, res.Encoders.Columns, "proto")
		require.Contains(t, res.Encoders.Columns, "flag")
		assert.NotContains(t, res.Encoders.Columns, "bytes")
		require.NotNil(t, res.Encoders.Target)
		assert.Equal(t, "attack", res.Encoders.DecodeClass(0))
	})

	t.Run("numeric target kept as class index", func(t *testing.T) {
		ds := load(t, "a,label\n1,0\n2,1\n3,1\n")
		res, err := Preprocess(ds, "label")
		require.NoError(t, err)
		assert.Nil(t, res.Encoders.Target)
		assert.Equal(t, []int{0, 1, 1}, res.Y)
		assert.Equal(t, []string{"0", "1"}, res.Classes)
		assert.Equal(t, "1", res.Encoders.DecodeClass(1))
	})

	t.Run("single valued feature still encoded", func(t *testing.T) {
		ds := load(t, "service,label\nhttp,a\nhttp,b\n")
		res, err := Preprocess(ds, "label")
		require.NoError(t, err)
		require.Contains(t, res.Encoders.Columns, "service")
		assert.Equal(t, 1, res.Encoders.Columns["service"].Len())
		assert.Equal(t, [][]float64{{0}, {0}}, res.X)
	})

	t.Run("feature named target does not clash", func(t *testing.T) {
		ds := load(t, "target,label\nweb,yes\ndns,no\n")
		res, err := Preprocess(ds, "label")
		require.NoError(t, err)
		assert.Equal(t, []string{"dns", "web"}, res.Encoders.Columns["target"].Categories())
		assert.Equal(t, []string{"no", "yes"}, res.Encoders.Target.Categories())
	})

	errorCases := []struct {
		name    string
		content string
		target  string
	}{
		{"missing target column", "a,b\n1,2\n", "label"},
		{"no complete rows", "a,label\n,0\nNA,1\n", "label"},
		{"only target column", "label\n0\n1\n", "label"},
		{"negative numeric target", "a,label\n1,-1\n2,0\n", "label"},
		{"fractional numeric target", "a,label\n1,0.5\n2,0\n", "label"},
		{"gap in numeric classes", "a,label\n1,0\n2,2\n", "label"},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Preprocess(load(t, tt.content), tt.target)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, errorutil.ErrPreprocess)
		})
	}
}

package score

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mchmarny/readmit/pkg/bundle"
	"github.com/mchmarny/readmit/pkg/model"
	"github.com/mchmarny/readmit/pkg/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBundle(t *testing.T) *bundle.Bundle {
	t.Helper()
	n := 300
	age := make([]float64, n)
	gender := make([]string, n)
	flag := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		age[i] = float64(20 + i%70)
		gender[i] = []string{"F", "M", "Unknown"}[i%3]
		flag[i] = float64(i % 2)
		if age[i] > 60 {
			y[i] = 1
		}
	}
	tbl, err := table.New(
		table.NewNumeric("age", age),
		table.NewCategorical("gender", gender, nil),
		table.NewNumeric("bmi_was_missing", flag),
	)
	require.NoError(t, err)

	cfg := model.DefaultBoosterConfig()
	cfg.MaxIter = 10
	p := model.NewPipeline(cfg)
	require.NoError(t, p.Fit(context.Background(), tbl, y))
	return bundle.New(p, tbl.Names())
}

func saveBundle(t *testing.T, b *bundle.Bundle) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), bundle.FileName)
	require.NoError(t, bundle.Save(path, b))
	return path
}

func TestProvider_LocalLoad(t *testing.T) {
	path := saveBundle(t, testBundle(t))
	p, err := NewProvider(path)
	require.NoError(t, err)
	assert.False(t, p.Ready())
	assert.Nil(t, p.Bundle())
	assert.Equal(t, path, p.Source())

	var wg sync.WaitGroup
	got := make([]*bundle.Bundle, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := p.Load(context.Background())
			assert.NoError(t, err)
			got[i] = b
		}(i)
	}
	wg.Wait()

	require.True(t, p.Ready())
	for _, b := range got {
		assert.Same(t, got[0], b)
	}
	assert.Same(t, got[0], p.Bundle())
}

func TestProvider_Missing(t *testing.T) {
	p, err := NewProvider(filepath.Join(t.TempDir(), "none.gob"))
	require.NoError(t, err)
	_, err = p.Load(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.False(t, p.Ready())
}

func TestProvider_BadSource(t *testing.T) {
	_, err := NewProvider("s3://bucket/model.gob")
	assert.ErrorIs(t, err, bundle.ErrUnsupportedSource)
}

func TestProvider_Remote(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, testBundle(t).Encode(&buf))

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	cache := t.TempDir()
	p, err := NewProvider(srv.URL+"/model.gob", WithCacheDir(cache), WithRetries(1), WithClient(srv.Client()))
	require.NoError(t, err)

	b, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"age", "gender", "bmi_was_missing"}, b.FeatureNames)
	assert.FileExists(t, filepath.Join(cache, bundle.FileName))

	_, err = p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestScoreRecords(t *testing.T) {
	b := testBundle(t)
	probs, err := ScoreRecords(b, []map[string]any{
		{"age": 75.0, "gender": "F", "bmi_was_missing": 0.0},
		{"age": 30.0},
		{"unexpected": "x"},
		{},
	})
	require.NoError(t, err)
	require.Len(t, probs, 4)
	for _, v := range probs {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.Greater(t, probs[0], probs[1])

	empty, err := ScoreRecords(b, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ScoreRecords(nil, nil)
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestScoreCSV(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.csv")
	out := filepath.Join(dir, "out", "scored.csv")
	require.NoError(t, os.WriteFile(in, []byte("patient_id,age,gender\n1,80,M\n2,,F\n3,25,\n"), 0600))

	p := NewStaticProvider("memory", testBundle(t))
	res, err := ScoreCSV(context.Background(), p, in, out)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rows)
	assert.Greater(t, res.MeanProba, 0.0)

	scored, err := table.ReadCSVFile(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"patient_id", "age", "gender", ProbaColumn}, scored.Names())
	assert.Equal(t, 3, scored.Len())
	c, _ := scored.Column(ProbaColumn)
	assert.Equal(t, table.Numeric, c.Kind)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "patient_id,age,gender,readmitted_proba\n"))
}

func TestScoreCSV_MissingInput(t *testing.T) {
	p := NewStaticProvider("memory", testBundle(t))
	_, err := ScoreCSV(context.Background(), p, filepath.Join(t.TempDir(), "none.csv"), "out.csv")
	assert.Error(t, err)
}

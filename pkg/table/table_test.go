package table

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromStrings_InfersKind(t *testing.T) {
	tests := []struct {
		name  string
		vals  []string
		kind  Kind
		nulls int
	}{
		{"ints", []string{"1", "2", "3"}, Numeric, 0},
		{"with missing", []string{"1.5", "", "NA"}, Numeric, 2},
		{"bools", []string{"true", "False"}, Numeric, 0},
		{"text", []string{"F", "M", "1"}, Categorical, 0},
		{"all missing", []string{"", "nan"}, Numeric, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := FromStrings("x", tt.vals)
			assert.Equal(t, tt.kind, c.Kind)
			assert.Equal(t, tt.nulls, c.NullCount())
		})
	}
}

func TestColumn_Key(t *testing.T) {
	c := FromStrings("id", []string{"007", "7.0", ""})
	assert.Equal(t, "7", c.Key(0))
	assert.Equal(t, "7", c.Key(1))
	assert.Equal(t, "", c.Key(2))
}

func TestColumn_TakeMissing(t *testing.T) {
	c := NewNumeric("x", []float64{1, 2})
	out := c.Take([]int{1, -1})
	assert.InDelta(t, 2.0, out.Float(0), 1e-12)
	assert.True(t, out.IsNull(1))
	assert.True(t, math.IsNaN(out.Float(1)))
}

func TestNewConstant(t *testing.T) {
	s := NewConstant("gender", "Unknown", 3)
	assert.Equal(t, Categorical, s.Kind)
	assert.Equal(t, "Unknown", s.String(2))

	n := NewConstant("age", 0, 2)
	assert.Equal(t, Numeric, n.Kind)
	assert.Equal(t, "0", n.String(1))
}

func TestTable_SetLengthMismatch(t *testing.T) {
	tbl, err := New(NewNumeric("a", []float64{1, 2}))
	require.NoError(t, err)
	err = tbl.Set(NewNumeric("b", []float64{1}))
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestTable_SelectAndDrop(t *testing.T) {
	tbl, err := New(
		NewNumeric("a", []float64{1, 2}),
		NewNumeric("b", []float64{3, 4}),
		NewNumeric("c", []float64{5, 6}),
	)
	require.NoError(t, err)

	sel, err := tbl.Select([]string{"c", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, sel.Names())

	_, err = tbl.Select([]string{"zzz"})
	assert.ErrorIs(t, err, ErrColumnNotFound)

	assert.Equal(t, []string{"a", "c"}, tbl.Drop("b", "nope").Names())
}

func TestTable_Filter(t *testing.T) {
	tbl, err := New(NewNumeric("a", []float64{1, 2, 3}))
	require.NoError(t, err)
	out, err := tbl.Filter([]bool{true, false, true})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Len())
	a, err := out.MustColumn("a")
	require.NoError(t, err)
	assert.Equal(t, "3", a.String(1))

	_, err = tbl.Filter([]bool{true})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestFromRecords(t *testing.T) {
	recs := []map[string]any{
		{"age": 70.0, "gender": "F"},
		{"age": nil, "los": 3.0},
		{"gender": "NA"},
	}
	tbl, err := FromRecords(recs)
	require.NoError(t, err)
	assert.Equal(t, []string{"age", "gender", "los"}, tbl.Names())
	assert.Equal(t, 3, tbl.Len())

	age, _ := tbl.Column("age")
	assert.Equal(t, Numeric, age.Kind)
	assert.True(t, age.IsNull(1))
	assert.True(t, age.IsNull(2))

	gender, _ := tbl.Column("gender")
	assert.Equal(t, Categorical, gender.Kind)
	assert.True(t, gender.IsNull(2))
}

func TestFromRecords_KeepsStringText(t *testing.T) {
	recs := []map[string]any{
		{"icd_code": "0389", "zip": "02139", "flag": true},
		{"icd_code": "0389", "zip": "10001", "flag": false},
	}
	tbl, err := FromRecords(recs)
	require.NoError(t, err)

	icd, _ := tbl.Column("icd_code")
	assert.Equal(t, "0389", icd.String(0))

	csv, err := ReadCSV(strings.NewReader("icd_code,zip\n0389,02139\n0389,10001\n"))
	require.NoError(t, err)
	for _, name := range []string{"icd_code", "zip"} {
		a, _ := tbl.Column(name)
		b, _ := csv.Column(name)
		assert.Equal(t, b.Kind, a.Kind, name)
		assert.Equal(t, b.Strings(), a.Strings(), name)
	}

	flag, _ := tbl.Column("flag")
	assert.Equal(t, Numeric, flag.Kind)
	assert.Equal(t, []float64{1, 0}, flag.Floats())
}

func TestReadCSV(t *testing.T) {
	in := "\xEF\xBB\xBFpatient_id,age,gender,age\n1,70,F,x\n2,,M\n"
	tbl, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"patient_id", "age", "gender", "age.1"}, tbl.Names())
	assert.Equal(t, 2, tbl.Len())

	age, _ := tbl.Column("age")
	assert.Equal(t, Numeric, age.Kind)
	assert.True(t, age.IsNull(1))

	dup, _ := tbl.Column("age.1")
	assert.True(t, dup.IsNull(1))
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestWriteCSV(t *testing.T) {
	tbl, err := New(
		NewNumeric("a", []float64{1.5, math.NaN()}),
		NewCategorical("b", []string{"x", "y"}, nil),
	)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tbl))
	assert.Equal(t, "a,b\n1.5,x\n,y\n", buf.String())
}

func TestCSVFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "t.csv")
	tbl, err := New(NewCategorical("k", []string{"a", "b"}, nil))
	require.NoError(t, err)
	require.NoError(t, WriteCSVFile(path, tbl))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, tbl.Names(), got.Names())
	assert.Equal(t, 2, got.Len())
}

type parquetRow struct {
	PatientID int64   `parquet:"patient_id"`
	Gender    string  `parquet:"gender"`
	Age       float64 `parquet:"age"`
}

func TestReadParquetFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patients.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := parquet.NewGenericWriter[parquetRow](f, parquet.Compression(&parquet.Snappy))
	_, err = w.Write([]parquetRow{{1, "F", 70}, {2, "M", 55.5}})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	tbl, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
	assert.ElementsMatch(t, []string{"patient_id", "gender", "age"}, tbl.Names())

	age, _ := tbl.Column("age")
	assert.Equal(t, Numeric, age.Kind)
	assert.InDelta(t, 55.5, age.Float(1), 1e-9)
}

func TestLeftJoin(t *testing.T) {
	claims, err := New(
		NewNumeric("patient_id", []float64{1, 2, 3}),
		NewCategorical("dx", []string{"a", "b", "c"}, nil),
	)
	require.NoError(t, err)
	patients, err := New(
		FromStrings("patient_id", []string{"2", "1", "1"}),
		NewCategorical("dx", []string{"p2", "p1", "p1b"}, nil),
		NewNumeric("age", []float64{50, 70, 71}),
	)
	require.NoError(t, err)

	out, err := LeftJoin(claims, patients, "patient_id", "_pt")
	require.NoError(t, err)
	assert.Equal(t, []string{"patient_id", "dx", "dx_pt", "age"}, out.Names())
	require.Equal(t, 4, out.Len())

	id, _ := out.Column("patient_id")
	assert.Equal(t, []string{"1", "1", "2", "3"}, []string{id.Key(0), id.Key(1), id.Key(2), id.Key(3)})

	age, _ := out.Column("age")
	assert.InDelta(t, 70.0, age.Float(0), 1e-12)
	assert.InDelta(t, 71.0, age.Float(1), 1e-12)
	assert.True(t, age.IsNull(3))

	_, err = LeftJoin(claims, patients, "member_id", "_pt")
	assert.ErrorIs(t, err, ErrColumnNotFound)
}

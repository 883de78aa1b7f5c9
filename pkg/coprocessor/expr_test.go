package coprocessor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evalOn(t *testing.T, e *Expr) Datum {
	t.Helper()
	ctx := &EvalContext{}
	d, err := ctx.Eval(e, &Row{})
	require.NoError(t, err)
	return d
}

func TestCompareIntSameSignedness(t *testing.T) {
	d := evalOn(t, NewScalarFuncExpr(SigEQInt, NewIntExpr(3), NewIntExpr(3)))
	assert.Equal(t, IntDatum(1), d)

	d = evalOn(t, NewScalarFuncExpr(SigLTInt, NewIntExpr(-5), NewIntExpr(2)))
	assert.Equal(t, IntDatum(1), d)

	d = evalOn(t, NewScalarFuncExpr(SigGTInt, NewUintExpr(7), NewUintExpr(2)))
	assert.Equal(t, IntDatum(1), d)

	// Null on either side yields null.
	d = evalOn(t, NewScalarFuncExpr(SigEQInt, &Expr{Tp: ExprNull}, NewIntExpr(1)))
	assert.True(t, d.IsNull())
}

func TestCompareIntMixedSignednessRejected(t *testing.T) {
	ctx := &EvalContext{}
	_, err := ctx.Eval(NewScalarFuncExpr(SigEQInt, NewIntExpr(-1), NewUintExpr(math.MaxUint64)), &Row{})
	require.Error(t, err)
	var evalErr *EvalError
	assert.ErrorAs(t, err, &evalErr)
}

func TestEQRealNaN(t *testing.T) {
	d := evalOn(t, NewScalarFuncExpr(SigEQReal, NewFloatExpr(math.NaN()), NewFloatExpr(math.NaN())))
	assert.True(t, d.IsNull(), "NaN never compares equal, not even to itself")

	d = evalOn(t, NewScalarFuncExpr(SigEQReal, NewFloatExpr(1.5), NewFloatExpr(1.5)))
	assert.Equal(t, IntDatum(1), d)

	d = evalOn(t, NewScalarFuncExpr(SigEQReal, NewFloatExpr(1.5), NewFloatExpr(2.5)))
	assert.Equal(t, IntDatum(0), d)
}

func TestLogicalAndTruthTable(t *testing.T) {
	null := &Expr{Tp: ExprNull}
	cases := []struct {
		a, b *Expr
		want Datum
	}{
		{null, NewIntExpr(0), IntDatum(0)},
		{null, NewIntExpr(1), NullDatum()},
		{null, null, NullDatum()},
		{NewIntExpr(0), null, IntDatum(0)},
		{NewIntExpr(1), null, NullDatum()},
		{NewIntExpr(1), NewIntExpr(2), IntDatum(1)},
		{NewIntExpr(1), NewIntExpr(0), IntDatum(0)},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, evalOn(t, NewScalarFuncExpr(SigLogicalAnd, c.a, c.b)))
	}
}

func TestLogicalOrTruthTable(t *testing.T) {
	null := &Expr{Tp: ExprNull}
	cases := []struct {
		a, b *Expr
		want Datum
	}{
		{null, NewIntExpr(0), NullDatum()},
		{null, NewIntExpr(1), IntDatum(1)},
		{null, null, NullDatum()},
		{NewIntExpr(0), NewIntExpr(0), IntDatum(0)},
		{NewIntExpr(0), null, NullDatum()},
		{NewIntExpr(3), null, IntDatum(1)},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, evalOn(t, NewScalarFuncExpr(SigLogicalOr, c.a, c.b)))
	}
}

func TestIsNullAndNot(t *testing.T) {
	assert.Equal(t, IntDatum(1), evalOn(t, NewScalarFuncExpr(SigIntIsNull, &Expr{Tp: ExprNull})))
	assert.Equal(t, IntDatum(0), evalOn(t, NewScalarFuncExpr(SigIntIsNull, NewIntExpr(0))))

	assert.Equal(t, IntDatum(1), evalOn(t, NewScalarFuncExpr(SigUnaryNot, NewIntExpr(0))))
	assert.Equal(t, IntDatum(0), evalOn(t, NewScalarFuncExpr(SigUnaryNot, NewIntExpr(5))))
	assert.True(t, evalOn(t, NewScalarFuncExpr(SigUnaryNot, &Expr{Tp: ExprNull})).IsNull())
}

func TestDatumRoundtrip(t *testing.T) {
	ds := []Datum{
		NullDatum(),
		IntDatum(-42),
		UintDatum(math.MaxUint64),
		FloatDatum(3.25),
		BytesDatum([]byte("payload")),
	}
	var buf []byte
	for _, d := range ds {
		buf = EncodeDatum(buf, d)
	}
	rest := buf
	for _, want := range ds {
		var got Datum
		var err error
		got, rest, err = DecodeDatum(rest)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Empty(t, rest)
}

func TestRowCodec(t *testing.T) {
	key := EncodeRecordKey(11, -7)
	handle, ok := DecodeRecordHandle(key)
	require.True(t, ok)
	assert.Equal(t, int64(-7), handle)

	_, ok = DecodeRecordHandle([]byte("plain-key"))
	assert.False(t, ok)

	// Handles must order correctly under byte comparison.
	neg := EncodeRecordKey(11, -1)
	pos := EncodeRecordKey(11, 1)
	assert.Negative(t, compareBytes(neg, pos))

	value := EncodeRow([]int64{1, 2}, []Datum{IntDatum(10), BytesDatum([]byte("x"))})
	cols, err := DecodeRowValues(value)
	require.NoError(t, err)
	require.Len(t, cols, 2)
	d, _, err := DecodeDatum(cols[1])
	require.NoError(t, err)
	assert.Equal(t, IntDatum(10), d)
}

func compareBytes(a, b []byte) int {
	switch {
	case string(a) < string(b):
		return -1
	case string(a) > string(b):
		return 1
	default:
		return 0
	}
}

func TestExprDepth(t *testing.T) {
	leaf := NewIntExpr(1)
	nested := NewScalarFuncExpr(SigUnaryNot, NewScalarFuncExpr(SigUnaryNot, leaf))
	assert.Equal(t, 1, exprDepth(leaf))
	assert.Equal(t, 3, exprDepth(nested))
}

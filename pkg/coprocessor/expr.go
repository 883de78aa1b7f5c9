package coprocessor

import (
	"math"
)

// EvalContext carries the request-level evaluation settings.
type EvalContext struct {
	TimeZoneOffset int64
	Flags          uint64
}

// Eval evaluates an expression against one row.
func (ctx *EvalContext) Eval(e *Expr, row *Row) (Datum, error) {
	switch e.Tp {
	case ExprNull:
		return NullDatum(), nil
	case ExprInt64:
		return IntDatum(e.IntVal()), nil
	case ExprUint64:
		return UintDatum(e.UintVal()), nil
	case ExprFloat64:
		return FloatDatum(e.FloatVal()), nil
	case ExprBytes:
		return BytesDatum(e.Val), nil
	case ExprColumnRef:
		return ctx.evalColumn(int64(e.UintVal()), row)
	case ExprScalarFunc:
		return ctx.evalScalarFunc(e, row)
	default:
		return Datum{}, evalErrf("unknown expression type %d", e.Tp)
	}
}

func (ctx *EvalContext) evalColumn(colID int64, row *Row) (Datum, error) {
	encoded, ok := row.Cols[colID]
	if !ok {
		return NullDatum(), nil
	}
	d, _, err := DecodeDatum(encoded)
	return d, err
}

func (ctx *EvalContext) evalScalarFunc(e *Expr, row *Row) (Datum, error) {
	args := make([]Datum, len(e.Children))
	for i, child := range e.Children {
		d, err := ctx.Eval(child, row)
		if err != nil {
			return Datum{}, err
		}
		args[i] = d
	}
	switch e.Sig {
	case SigEQInt, SigLTInt, SigGTInt:
		return evalCompareInt(e.Sig, args)
	case SigEQReal:
		return evalEQReal(args)
	case SigLogicalAnd:
		return evalLogicalAnd(args)
	case SigLogicalOr:
		return evalLogicalOr(args)
	case SigIntIsNull:
		return boolDatum(args[0].IsNull()), nil
	case SigUnaryNot:
		if args[0].IsNull() {
			return NullDatum(), nil
		}
		i, err := intArg(args[0])
		if err != nil {
			return Datum{}, err
		}
		return boolDatum(i == 0), nil
	default:
		return Datum{}, evalErrf("unknown scalar function %d", e.Sig)
	}
}

// evalCompareInt compares two integers of matching signedness. Comparing a
// signed value with an unsigned one is rejected rather than guessed.
func evalCompareInt(sig ScalarFuncSig, args []Datum) (Datum, error) {
	a, b := args[0], args[1]
	if a.IsNull() || b.IsNull() {
		return NullDatum(), nil
	}
	var cmp int
	switch {
	case a.Kind == KindInt64 && b.Kind == KindInt64:
		cmp = compareOrdered(a.I, b.I)
	case a.Kind == KindUint64 && b.Kind == KindUint64:
		cmp = compareOrdered(a.U, b.U)
	case (a.Kind == KindInt64 && b.Kind == KindUint64) ||
		(a.Kind == KindUint64 && b.Kind == KindInt64):
		return Datum{}, evalErrf("comparing signed with unsigned integer")
	default:
		return Datum{}, evalErrf("integer comparison over kinds %d and %d", a.Kind, b.Kind)
	}
	switch sig {
	case SigEQInt:
		return boolDatum(cmp == 0), nil
	case SigLTInt:
		return boolDatum(cmp < 0), nil
	default:
		return boolDatum(cmp > 0), nil
	}
}

// evalEQReal yields unknown when either side is NaN, so that NaN never
// compares equal to anything, itself included.
func evalEQReal(args []Datum) (Datum, error) {
	a, b := args[0], args[1]
	if a.IsNull() || b.IsNull() {
		return NullDatum(), nil
	}
	if a.Kind != KindFloat64 || b.Kind != KindFloat64 {
		return Datum{}, evalErrf("real comparison over kinds %d and %d", a.Kind, b.Kind)
	}
	if math.IsNaN(a.F) || math.IsNaN(b.F) {
		return NullDatum(), nil
	}
	return boolDatum(a.F == b.F), nil
}

func evalLogicalAnd(args []Datum) (Datum, error) {
	a, err := boolOrNull(args[0])
	if err != nil {
		return Datum{}, err
	}
	b, err := boolOrNull(args[1])
	if err != nil {
		return Datum{}, err
	}
	// False dominates null on either side.
	switch {
	case a == triFalse || b == triFalse:
		return boolDatum(false), nil
	case a == triNull || b == triNull:
		return NullDatum(), nil
	default:
		return boolDatum(true), nil
	}
}

func evalLogicalOr(args []Datum) (Datum, error) {
	a, err := boolOrNull(args[0])
	if err != nil {
		return Datum{}, err
	}
	b, err := boolOrNull(args[1])
	if err != nil {
		return Datum{}, err
	}
	// True dominates null on either side.
	switch {
	case a == triTrue || b == triTrue:
		return boolDatum(true), nil
	case a == triNull || b == triNull:
		return NullDatum(), nil
	default:
		return boolDatum(false), nil
	}
}

type tristate int

const (
	triNull tristate = iota
	triFalse
	triTrue
)

func boolOrNull(d Datum) (tristate, error) {
	if d.IsNull() {
		return triNull, nil
	}
	i, err := intArg(d)
	if err != nil {
		return triNull, err
	}
	if i == 0 {
		return triFalse, nil
	}
	return triTrue, nil
}

func intArg(d Datum) (int64, error) {
	switch d.Kind {
	case KindInt64:
		return d.I, nil
	case KindUint64:
		return int64(d.U), nil
	default:
		return 0, evalErrf("expected integer argument, got kind %d", d.Kind)
	}
}

func boolDatum(b bool) Datum {
	if b {
		return IntDatum(1)
	}
	return IntDatum(0)
}

func compareOrdered[T int64 | uint64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// exprDepth returns the nesting depth of an expression tree.
func exprDepth(e *Expr) int {
	depth := 0
	for _, c := range e.Children {
		if d := exprDepth(c); d > depth {
			depth = d
		}
	}
	return depth + 1
}

package query

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidestore/tidestore-go/tidestore"
	"github.com/tidestore/tidestore-go/tidestore/wire"
)

// arithOpIter evaluates a chain of additive or multiplicative operations.
// ops holds one operation character per argument: "+-" style for the
// additive form, "*/d" for the multiplicative form, where 'd' is the
// division that always yields a DOUBLE. The first character is always
// the identity op for the chain.
type arithOpIter struct {
	planIterBase
	fnCode int
	args   []planIter
	ops    string

	// initRes is the identity for the chain, promoted to float64 when a
	// 'd' op is present.
	initRes tidestore.Value
}

func readArithOpIter(r *wire.Reader) (*arithOpIter, error) {
	b, err := readBase(r)
	if err != nil {
		return nil, err
	}
	fnCode, err := r.ReadShort()
	if err != nil {
		return nil, err
	}
	args, err := deserializeIters(r)
	if err != nil {
		return nil, err
	}
	ops, _, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	if len(ops) != len(args) {
		return nil, tidestore.NewQueryState(
			"arithmetic op count %d does not match argument count %d", len(ops), len(args))
	}
	it := &arithOpIter{planIterBase: b, fnCode: fnCode, args: args, ops: ops}
	switch fnCode {
	case fnOpAddSub:
		it.initRes = 0
	case fnOpMultDiv:
		it.initRes = 1
	default:
		return nil, tidestore.NewQueryState("unexpected arithmetic function code %d", fnCode)
	}
	if strings.ContainsRune(ops, 'd') {
		f, _ := it.initRes.(int)
		it.initRes = float64(f)
	}
	return it, nil
}

func (it *arithOpIter) getKind() int { return kindArithOp }

func (it *arithOpIter) open(rcb *runtimeControlBlock) error {
	rcb.setState(it.statePos, &planIterState{})
	for _, arg := range it.args {
		if err := arg.open(rcb); err != nil {
			return err
		}
	}
	return nil
}

func (it *arithOpIter) next(rcb *runtimeControlBlock) (bool, error) {
	state := rcb.getState(it.statePos).stateBase()
	if state.isDone() {
		return false, nil
	}
	res := it.initRes
	for i, arg := range it.args {
		more, err := arg.next(rcb)
		if err != nil {
			return false, err
		}
		if !more {
			if err := state.done(); err != nil {
				return false, err
			}
			return false, nil
		}
		argVal := rcb.getRegVal(arg.getResultReg())
		if argVal == nil {
			res = nil
			break
		}
		if !tidestore.IsNumeric(argVal) {
			return false, tidestore.NewQueryError(it.loc,
				"operand in arithmetic operation has non-numeric type")
		}
		res, err = applyArithOp(res, it.ops[i], argVal, it.loc)
		if err != nil {
			return false, err
		}
	}
	rcb.setRegVal(it.resultReg, res)
	return true, nil
}

// applyArithOp applies one operation with the usual numeric promotion:
// INTEGER -> LONG -> DOUBLE -> NUMBER, widest operand wins. Integer
// division truncates; 'd' forces floating-point division.
func applyArithOp(res tidestore.Value, op byte, arg tidestore.Value,
	loc tidestore.Location) (tidestore.Value, error) {

	if rd, aOK := res.(decimal.Decimal); aOK {
		return applyDecimalOp(rd, op, toDecimalValue(arg), loc)
	}
	if ad, bOK := arg.(decimal.Decimal); bOK {
		return applyDecimalOp(toDecimalValue(res), op, ad, loc)
	}

	rf, rIsFloat := res.(float64)
	af, aIsFloat := arg.(float64)
	if rIsFloat || aIsFloat || op == 'd' {
		if !rIsFloat {
			rf = float64(intImage(res))
		}
		if !aIsFloat {
			af = float64(intImage(arg))
		}
		switch op {
		case '+':
			return rf + af, nil
		case '-':
			return rf - af, nil
		case '*':
			return rf * af, nil
		case '/', 'd':
			return rf / af, nil
		}
		return nil, tidestore.NewQueryState("unexpected arithmetic op %q", op)
	}

	ri, rIsInt := res.(int)
	ai, aIsInt := arg.(int)
	if rIsInt && aIsInt {
		switch op {
		case '+':
			return ri + ai, nil
		case '-':
			return ri - ai, nil
		case '*':
			return ri * ai, nil
		case '/':
			if ai == 0 {
				return nil, tidestore.NewQueryError(loc, "division by zero")
			}
			return ri / ai, nil
		}
		return nil, tidestore.NewQueryState("unexpected arithmetic op %q", op)
	}

	rl := intImage(res)
	al := intImage(arg)
	switch op {
	case '+':
		return rl + al, nil
	case '-':
		return rl - al, nil
	case '*':
		return rl * al, nil
	case '/':
		if al == 0 {
			return nil, tidestore.NewQueryError(loc, "division by zero")
		}
		return rl / al, nil
	}
	return nil, tidestore.NewQueryState("unexpected arithmetic op %q", op)
}

func applyDecimalOp(a decimal.Decimal, op byte, b decimal.Decimal,
	loc tidestore.Location) (tidestore.Value, error) {

	switch op {
	case '+':
		return a.Add(b), nil
	case '-':
		return a.Sub(b), nil
	case '*':
		return a.Mul(b), nil
	case '/', 'd':
		if b.IsZero() {
			return nil, tidestore.NewQueryError(loc, "division by zero")
		}
		return a.Div(b), nil
	}
	return nil, tidestore.NewQueryState("unexpected arithmetic op %q", op)
}

func toDecimalValue(v tidestore.Value) decimal.Decimal {
	switch n := v.(type) {
	case decimal.Decimal:
		return n
	case int:
		return decimal.NewFromInt(int64(n))
	case int64:
		return decimal.NewFromInt(n)
	case float64:
		return decimal.NewFromFloat(n)
	}
	return decimal.Decimal{}
}

func intImage(v tidestore.Value) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	}
	return 0
}

func (it *arithOpIter) reset(rcb *runtimeControlBlock) error {
	for _, arg := range it.args {
		if err := arg.reset(rcb); err != nil {
			return err
		}
	}
	return rcb.getState(it.statePos).stateBase().reset()
}

func (it *arithOpIter) close(rcb *runtimeControlBlock) error {
	state := rcb.getState(it.statePos)
	if state == nil {
		return nil
	}
	for _, arg := range it.args {
		if err := arg.close(rcb); err != nil {
			return err
		}
	}
	state.stateBase().close()
	return nil
}

func (it *arithOpIter) displayName() string {
	if it.fnCode == fnOpAddSub {
		return "ADD_SUB"
	}
	return "MULT_DIV"
}

func (it *arithOpIter) displayContent(sb *strings.Builder, f *planFormatter) {
	for i, arg := range it.args {
		f.printIndent(sb)
		fmt.Fprintf(sb, "'%c'\n", it.ops[i])
		displayIter(sb, f, arg)
		if i < len(it.args)-1 {
			sb.WriteString(",\n")
		}
	}
}

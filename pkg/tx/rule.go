package tx

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// NonNegativeRule rejects rows with a negative amount or price.
const NonNegativeRule = "amount >= 0.0 && price >= 0.0"

// Rule is a compiled CEL expression deciding whether a row's USD value is
// admitted into the aggregates. Rules are safe for concurrent use.
type Rule struct {
	expr    string
	program cel.Program
}

// NewRule compiles expr. The expression must evaluate to a bool and may
// reference wallet, action, amount, price, usd_value and timestamp.
func NewRule(expr string) (*Rule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("rule expression required")
	}

	env, err := cel.NewEnv(
		cel.Variable("wallet", cel.StringType),
		cel.Variable("action", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("price", cel.DoubleType),
		cel.Variable("usd_value", cel.DoubleType),
		cel.Variable("timestamp", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rule environment: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compiling rule %q: %w", expr, iss.Err())
	}

	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("rule %q must return bool, got %s", expr, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("building rule program %q: %w", expr, err)
	}

	return &Rule{expr: expr, program: prg}, nil
}

// String returns the rule expression.
func (r *Rule) String() string {
	return r.expr
}

// allows evaluates the rule against a parsed row.
func (r *Rule) allows(t *Transaction, v value) (bool, error) {
	out, _, err := r.program.Eval(map[string]any{
		"wallet":    t.Wallet,
		"action":    t.Action,
		"amount":    v.amount,
		"price":     v.price,
		"usd_value": v.usd,
		"timestamp": t.Time.Unix(),
	})
	if err != nil {
		return false, fmt.Errorf("evaluating rule %q: %w", r.expr, err)
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule %q returned %T", r.expr, out.Value())
	}
	return b, nil
}

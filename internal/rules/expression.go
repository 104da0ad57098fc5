package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Expressions compiles and runs CEL conditions attached to rule configs.
// Programs are memoised by expression text, so an edited rule simply
// compiles a new entry.
type Expressions struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]compiledExpression
}

type compiledExpression struct {
	program cel.Program
	err     error
}

// NewExpressions creates the CEL environment exposing the facts activation.
func NewExpressions() (*Expressions, error) {
	env, err := cel.NewEnv(
		cel.Variable("scope", cel.StringType),
		cel.Variable("entity_id", cel.StringType),
		cel.Variable("tags", cel.ListType(cel.StringType)),
		cel.Variable("document", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("company", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Expressions{
		env:      env,
		programs: make(map[string]compiledExpression),
	}, nil
}

// Compile checks that expr is a valid boolean expression.
func (x *Expressions) Compile(expr string) error {
	_, err := x.program(expr)
	return err
}

// Eval runs expr against the facts. Any error means the condition does not hold.
func (x *Expressions) Eval(expr string, facts *domain.Facts) (bool, error) {
	prg, err := x.program(expr)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(facts.Activation())
	if err != nil {
		return false, fmt.Errorf("evaluation error: %w", err)
	}

	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("expression returned %s, want bool", out.Type().TypeName())
	}
	return bool(b), nil
}

func (x *Expressions) program(expr string) (cel.Program, error) {
	x.mu.RLock()
	c, ok := x.programs[expr]
	x.mu.RUnlock()
	if ok {
		return c.program, c.err
	}

	c.program, c.err = x.compile(expr)

	x.mu.Lock()
	x.programs[expr] = c
	x.mu.Unlock()

	return c.program, c.err
}

func (x *Expressions) compile(expr string) (cel.Program, error) {
	ast, issues := x.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType && ast.OutputType() != cel.DynType {
		return nil, fmt.Errorf("expression must return bool, got %s", ast.OutputType())
	}

	prg, err := x.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}
	return prg, nil
}

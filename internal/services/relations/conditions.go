package relations

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/asakaida/kankei/internal/entities"
	"github.com/asakaida/kankei/pkg/cache"
	"github.com/asakaida/kankei/pkg/cache/memorycache"
)

// DefaultProgramCacheSize bounds the number of compiled condition programs kept in memory
const DefaultProgramCacheSize = 256

// ConditionEngine evaluates expression conditions against candidate records with CEL.
// Field conditions are left to the repositories; only Expr conditions are handled here.
type ConditionEngine struct {
	env      *cel.Env
	programs cache.Cache[string, cel.Program]
}

// NewConditionEngine creates a condition engine. A nil program cache selects a
// bounded in-memory LRU.
func NewConditionEngine(programs cache.Cache[string, cel.Program]) (*ConditionEngine, error) {
	// A candidate record is exposed as `record`, keyed by field name
	env, err := cel.NewEnv(
		cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	if programs == nil {
		programs = memorycache.New[string, cel.Program](&memorycache.Config{
			MaxEntries:    DefaultProgramCacheSize,
			EnableMetrics: true,
		})
	}

	return &ConditionEngine{
		env:      env,
		programs: programs,
	}, nil
}

// ValidateExpression validates a CEL expression without evaluating it
func (e *ConditionEngine) ValidateExpression(expression string) error {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("invalid CEL expression: %w", issues.Err())
	}

	// Field access on `record` is dynamic, so dyn is accepted alongside bool
	if out := ast.OutputType(); out != cel.BoolType && out != cel.DynType {
		return fmt.Errorf("CEL expression must return boolean, got: %s", out)
	}

	return nil
}

// Match evaluates one expression against a record
func (e *ConditionEngine) Match(expression string, rec *entities.Record) (bool, error) {
	program, err := e.program(expression)
	if err != nil {
		return false, err
	}

	result, _, err := program.Eval(map[string]interface{}{
		"record": recordVars(rec),
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression %q: %w", expression, err)
	}

	matched, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression %q did not evaluate to boolean, got: %T", expression, result.Value())
	}
	return matched, nil
}

// Filter keeps the records matching every expression condition, preserving order.
// Field conditions in conds are ignored.
func (e *ConditionEngine) Filter(recs []*entities.Record, conds []entities.Condition) ([]*entities.Record, error) {
	exprs := Expressions(conds)
	if len(exprs) == 0 {
		return recs, nil
	}

	out := make([]*entities.Record, 0, len(recs))
next:
	for _, rec := range recs {
		for _, expr := range exprs {
			ok, err := e.Match(expr, rec)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue next
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// CacheMetrics returns statistics of the compiled program cache
func (e *ConditionEngine) CacheMetrics() *cache.Metrics {
	return e.programs.Metrics()
}

// CacheLen returns the number of cached programs
func (e *ConditionEngine) CacheLen() int {
	return e.programs.Len()
}

func (e *ConditionEngine) program(expression string) (cel.Program, error) {
	if program, ok := e.programs.Get(expression); ok {
		return program, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	e.programs.Set(expression, program)
	return program, nil
}

// Expressions returns the CEL sources of the expression conditions
func Expressions(conds []entities.Condition) []string {
	var out []string
	for _, c := range conds {
		if c.IsExpression() {
			out = append(out, c.Expr)
		}
	}
	return out
}

// FieldConditions returns the conditions a repository can evaluate
func FieldConditions(conds []entities.Condition) []entities.Condition {
	var out []entities.Condition
	for _, c := range conds {
		if !c.IsExpression() {
			out = append(out, c)
		}
	}
	return out
}

// recordVars exposes every declared field, unset ones as null, so expressions
// never fail on a missing key
func recordVars(rec *entities.Record) map[string]interface{} {
	vars := make(map[string]interface{})
	for _, field := range rec.Class().ColumnNames() {
		vars[field] = nil
	}
	for field, v := range rec.Fields() {
		if n, ok := entities.AsInt64(v); ok {
			v = n
		}
		vars[field] = v
	}
	return vars
}

package condition

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/syntrixbase/datewatch/pkg/model"
)

// Program is a compiled condition ready for in-memory evaluation.
// A nil *Program matches everything.
type Program struct {
	expr   string
	prg    cel.Program
	params map[string]interface{}
}

// Compile compiles the set into a CEL program. Filter values are bound as
// variables, never spliced into the expression text.
func Compile(s Set) (*Program, error) {
	if s.MatchesAll() {
		return nil, nil
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	params := make(map[string]interface{})
	opts := []cel.EnvOption{
		cel.Variable("doc", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	}

	terms := make([]string, 0, len(s))
	for _, conj := range s {
		parts := make([]string, 0, len(conj))
		for _, f := range conj {
			name := fmt.Sprintf("p%d", len(params))
			params[name] = normalizeValue(f.Value)
			opts = append(opts, cel.Variable(name, cel.DynType))

			expr, err := filterExpression(f, name)
			if err != nil {
				return nil, err
			}
			parts = append(parts, expr)
		}
		terms = append(terms, "("+strings.Join(parts, " && ")+")")
	}
	expr := strings.Join(terms, " || ")

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidCondition, err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: CEL compile error: %v", model.ErrInvalidCondition, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: CEL program creation error: %v", model.ErrInvalidCondition, err)
	}

	return &Program{expr: expr, prg: prg, params: params}, nil
}

// MustCompile is like Compile but panics on error. Intended for tests and
// package-level fixtures.
func MustCompile(s Set) *Program {
	p, err := Compile(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the CEL source of the program.
func (p *Program) String() string {
	if p == nil {
		return "true"
	}
	return p.expr
}

// Match evaluates the program against a record snapshot.
func (p *Program) Match(r model.Record) (bool, error) {
	if p == nil {
		return true, nil
	}

	doc := make(map[string]interface{}, len(r))
	for k, v := range r {
		doc[k] = normalizeValue(v)
	}

	vars := make(map[string]interface{}, len(p.params)+1)
	for k, v := range p.params {
		vars[k] = v
	}
	vars["doc"] = doc

	out, _, err := p.prg.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("%w: CEL evaluation error: %v", model.ErrInvalidCondition, err)
	}
	match, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: CEL result is not boolean: %T", model.ErrInvalidCondition, out.Value())
	}
	return match, nil
}

// filterExpression renders one filter. Missing and null fields never match.
func filterExpression(f model.Filter, param string) (string, error) {
	field := fmt.Sprintf("doc['%s']", f.Field)
	guard := fmt.Sprintf("'%s' in doc && %s != null", f.Field, field)

	var cmp string
	switch f.Op {
	case model.OpEq:
		cmp = fmt.Sprintf("%s == %s", field, param)
	case model.OpNe:
		cmp = fmt.Sprintf("%s != %s", field, param)
	case model.OpGt:
		cmp = fmt.Sprintf("%s > %s", field, param)
	case model.OpGte:
		cmp = fmt.Sprintf("%s >= %s", field, param)
	case model.OpLt:
		cmp = fmt.Sprintf("%s < %s", field, param)
	case model.OpLte:
		cmp = fmt.Sprintf("%s <= %s", field, param)
	case model.OpIn:
		cmp = fmt.Sprintf("%s in %s", field, param)
	default:
		return "", fmt.Errorf("%w: unsupported operator: %s", model.ErrInvalidCondition, f.Op)
	}
	return fmt.Sprintf("(%s && %s)", guard, cmp), nil
}

// normalizeValue maps driver and decoder types onto the types CEL adapts natively.
func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case uint32:
		return int64(val)
	case float32:
		return float64(val)
	case []byte:
		return string(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}

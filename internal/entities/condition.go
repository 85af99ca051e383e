package entities

import (
	"fmt"
	"strings"
)

// Operator is a comparison operator usable in a Condition
type Operator string

const (
	OpEq      Operator = "="
	OpNe      Operator = "!="
	OpLt      Operator = "<"
	OpLe      Operator = "<="
	OpGt      Operator = ">"
	OpGe      Operator = ">="
	OpIn      Operator = "IN"
	OpIsNull  Operator = "IS NULL"
	OpNotNull Operator = "IS NOT NULL"
)

// Condition is one extra filter predicate of a relationship.
// Either Field/Op/Value is set, in which case the predicate is pushed down to the
// repository, or Expr is set and holds a CEL expression evaluated against each
// candidate record (exposed as the map variable "record").
type Condition struct {
	Field string      `yaml:"field,omitempty"`
	Op    Operator    `yaml:"op,omitempty"`
	Value interface{} `yaml:"value,omitempty"`
	Expr  string      `yaml:"expr,omitempty"`
}

// Eq builds an equality condition
func Eq(field string, value interface{}) Condition {
	return Condition{Field: field, Op: OpEq, Value: value}
}

// Where builds a field condition with an explicit operator
func Where(field string, op Operator, value interface{}) Condition {
	return Condition{Field: field, Op: op, Value: value}
}

// Expr builds an expression condition
func Expr(expression string) Condition {
	return Condition{Expr: expression}
}

// IsExpression reports whether the condition is evaluated in-engine
func (c Condition) IsExpression() bool {
	return c.Expr != ""
}

// Validate checks that the condition is well formed
func (c Condition) Validate() error {
	if c.Expr != "" {
		if c.Field != "" {
			return fmt.Errorf("condition cannot set both expr and field")
		}
		return nil
	}
	if c.Field == "" {
		return fmt.Errorf("condition field is required")
	}
	switch c.Op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpIsNull, OpNotNull:
	case OpIn:
		if _, ok := c.Value.([]interface{}); !ok {
			return fmt.Errorf("condition on %s: IN requires a list value", c.Field)
		}
	default:
		return fmt.Errorf("condition on %s: unsupported operator %q", c.Field, c.Op)
	}
	return nil
}

// String returns a readable form of the condition
func (c Condition) String() string {
	if c.Expr != "" {
		return c.Expr
	}
	switch c.Op {
	case OpIsNull, OpNotNull:
		return fmt.Sprintf("%s %s", c.Field, c.Op)
	}
	return fmt.Sprintf("%s %s %v", c.Field, c.Op, c.Value)
}

// OrderTerm orders by one field
type OrderTerm struct {
	Field string
	Desc  bool
}

// Order is an ordering specification. An empty Order means natural order.
type Order []OrderTerm

// ParseOrder parses "ID DESC, Name" style ordering specifications
func ParseOrder(spec string) (Order, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}

	var order Order
	for _, part := range strings.Split(spec, ",") {
		fields := strings.Fields(part)
		switch len(fields) {
		case 1:
			order = append(order, OrderTerm{Field: fields[0]})
		case 2:
			switch strings.ToUpper(fields[1]) {
			case "ASC":
				order = append(order, OrderTerm{Field: fields[0]})
			case "DESC":
				order = append(order, OrderTerm{Field: fields[0], Desc: true})
			default:
				return nil, fmt.Errorf("%w: invalid order direction %q", ErrConfiguration, fields[1])
			}
		default:
			return nil, fmt.Errorf("%w: invalid order term %q", ErrConfiguration, strings.TrimSpace(part))
		}
	}
	return order, nil
}

// String renders the order back to "Field [DESC]" form
func (o Order) String() string {
	parts := make([]string, len(o))
	for i, term := range o {
		if term.Desc {
			parts[i] = term.Field + " DESC"
		} else {
			parts[i] = term.Field
		}
	}
	return strings.Join(parts, ", ")
}

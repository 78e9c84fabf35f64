package models

import "strings"

// Operator is a filter comparison in intent vocabulary.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorIn          Operator = "in"
	OperatorNotIn       Operator = "not_in"
	OperatorContains    Operator = "contains"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorDateRange   Operator = "date_range"
)

// ValueShape is the JSON shape an operator expects for its value.
type ValueShape int

const (
	ShapeScalar ValueShape = iota // single string, number or bool
	ShapeList                     // non-empty list of scalars
	ShapePair                     // exactly two date bounds
)

var operatorShapes = map[Operator]ValueShape{
	OperatorEquals:      ShapeScalar,
	OperatorNotEquals:   ShapeScalar,
	OperatorIn:          ShapeList,
	OperatorNotIn:       ShapeList,
	OperatorContains:    ShapeScalar,
	OperatorGreaterThan: ShapeScalar,
	OperatorLessThan:    ShapeScalar,
	OperatorDateRange:   ShapePair,
}

// Operators returns every supported operator in a fixed order.
func Operators() []Operator {
	return []Operator{
		OperatorEquals, OperatorNotEquals, OperatorIn, OperatorNotIn,
		OperatorContains, OperatorGreaterThan, OperatorLessThan, OperatorDateRange,
	}
}

// ParseOperator matches case-insensitively and accepts spaces or hyphens in
// place of underscores ("not equals", "date-range").
func ParseOperator(s string) (Operator, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	op := Operator(key)
	if _, ok := operatorShapes[op]; ok {
		return op, true
	}
	return "", false
}

// Shape returns the value shape the operator requires.
func (o Operator) Shape() ValueShape {
	return operatorShapes[o]
}

// IsComparison reports whether the operator orders values.
func (o Operator) IsComparison() bool {
	return o == OperatorGreaterThan || o == OperatorLessThan
}

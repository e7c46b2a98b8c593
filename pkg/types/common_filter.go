package types

import (
	"fmt"

	"github.com/samber/lo"
	"gorm.io/gorm/clause"
)

type CommonFilterOperator string

const (
	CommonFilterOperatorEq      CommonFilterOperator = "eq"
	CommonFilterOperatorNotEq   CommonFilterOperator = "not_eq"
	CommonFilterOperatorLt      CommonFilterOperator = "lt"
	CommonFilterOperatorLte     CommonFilterOperator = "lte"
	CommonFilterOperatorGt      CommonFilterOperator = "gt"
	CommonFilterOperatorGte     CommonFilterOperator = "gte"
	CommonFilterOperatorRange   CommonFilterOperator = "range"
	CommonFilterOperatorIn      CommonFilterOperator = "in"
	CommonFilterOperatorIsNull  CommonFilterOperator = "is_null"
	CommonFilterOperatorNotNull CommonFilterOperator = "not_null"
)

type CommonFilter struct {
	Field    string               `json:"field"`
	Operator CommonFilterOperator `json:"operator"`
	Values   []any                `json:"values"`
}

// Validate rejects filters on columns outside allowed. Field names are
// written into SQL as identifiers, so they must never come from a client
// unchecked.
func (f *CommonFilter) Validate(allowed []string) error {
	if f == nil {
		return fmt.Errorf("nil filter")
	}
	if !lo.Contains(allowed, f.Field) {
		return fmt.Errorf("filter field not allowed: %s", f.Field)
	}
	switch f.Operator {
	case CommonFilterOperatorIsNull, CommonFilterOperatorNotNull:
		return nil
	case CommonFilterOperatorRange:
		if len(f.Values) < 2 {
			return fmt.Errorf("range filter on %s needs two values", f.Field)
		}
	}
	if len(f.Values) == 0 {
		return fmt.Errorf("filter on %s has no values", f.Field)
	}
	return nil
}

// Build constructs a GORM expression.
func (f *CommonFilter) Build(builder clause.Builder) {
	column := clause.Column{Name: f.Field}

	switch f.Operator {
	case CommonFilterOperatorIsNull:
		clause.Eq{Column: column, Value: nil}.Build(builder)
		return
	case CommonFilterOperatorNotNull:
		clause.Neq{Column: column, Value: nil}.Build(builder)
		return
	}

	if len(f.Values) == 0 {
		return
	}
	value := f.Values[0]

	switch f.Operator {
	case CommonFilterOperatorEq:
		clause.Eq{Column: column, Value: value}.Build(builder)
	case CommonFilterOperatorNotEq:
		clause.Neq{Column: column, Value: value}.Build(builder)
	case CommonFilterOperatorLt:
		clause.Lt{Column: column, Value: value}.Build(builder)
	case CommonFilterOperatorLte:
		clause.Lte{Column: column, Value: value}.Build(builder)
	case CommonFilterOperatorGt:
		clause.Gt{Column: column, Value: value}.Build(builder)
	case CommonFilterOperatorGte:
		clause.Gte{Column: column, Value: value}.Build(builder)
	case CommonFilterOperatorRange:
		if len(f.Values) < 2 {
			return
		}
		clause.And(clause.Gte{Column: column, Value: f.Values[0]}, clause.Lte{Column: column, Value: f.Values[1]}).Build(builder)
	case CommonFilterOperatorIn:
		clause.IN{Column: column, Values: f.Values}.Build(builder)
	}
}

// FiltersAnd joins filters into one expression usable in a WHERE clause.
type FiltersAnd []*CommonFilter

func (w FiltersAnd) Build(builder clause.Builder) {
	if len(w) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w))
	for _, f := range w {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

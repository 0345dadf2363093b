package knowledge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/agentstore/pkg/errs"
	"github.com/fyrsmithlabs/agentstore/pkg/metadata"
)

// Op is a filter comparison operator.
type Op string

// Filter operators. OpEq and OpIn also match scalar and slice shorthand in
// the where map; the rest require the explicit {"$op": value} form.
const (
	OpEq     Op = "$eq"
	OpNe     Op = "$ne"
	OpGt     Op = "$gt"
	OpGte    Op = "$gte"
	OpLt     Op = "$lt"
	OpLte    Op = "$lte"
	OpIn     Op = "$in"
	OpIsNull Op = "$null"
)

// Condition is one predicate on a flattened metadata key. All conditions of
// a filter are conjoined.
type Condition struct {
	Key string
	Op  Op

	// Value holds the comparison operand for scalar operators.
	Value any

	// Values holds the membership set for OpIn.
	Values []any
}

var comparisonOps = map[string]Op{
	string(OpEq):  OpEq,
	string(OpNe):  OpNe,
	string(OpGt):  OpGt,
	string(OpGte): OpGte,
	string(OpLt):  OpLt,
	string(OpLte): OpLte,
	string(OpIn):  OpIn,
}

// ParseWhere translates a where map into conditions on flattened keys.
//
// Value shapes map as follows: a scalar is an exact match, a slice is set
// membership, nil matches records missing the key, a single-key
// {"$op": operand} map is a comparison, and any other nested map descends
// one path segment. Unknown $-prefixed operators are a validation error.
func ParseWhere(where map[string]any) ([]Condition, error) {
	var conds []Condition
	if err := parseWhereInto("", where, &conds); err != nil {
		return nil, err
	}
	// Deterministic order keeps rendered backend filters stable.
	sort.Slice(conds, func(i, j int) bool {
		if conds[i].Key != conds[j].Key {
			return conds[i].Key < conds[j].Key
		}
		return conds[i].Op < conds[j].Op
	})
	return conds, nil
}

func parseWhereInto(prefix string, where map[string]any, out *[]Condition) error {
	for key, value := range where {
		if strings.HasPrefix(key, "$") {
			return errs.New(errs.IDInvalidArgs, errs.DomainValidation, errs.CategoryUser,
				"operator must apply to a field").
				WithDetail("operator", key).
				WithDetail("path", prefix)
		}
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		switch v := value.(type) {
		case nil:
			*out = append(*out, Condition{Key: path, Op: OpIsNull})
		case map[string]any:
			op, operand, ok, err := operatorClause(path, v)
			if err != nil {
				return err
			}
			if ok {
				cond, err := makeCondition(path, op, operand)
				if err != nil {
					return err
				}
				*out = append(*out, cond)
				continue
			}
			if err := parseWhereInto(path, v, out); err != nil {
				return err
			}
		default:
			if vals, ok := asSlice(value); ok {
				*out = append(*out, Condition{Key: path, Op: OpIn, Values: vals})
				continue
			}
			*out = append(*out, Condition{Key: path, Op: OpEq, Value: value})
		}
	}
	return nil
}

// operatorClause inspects a map value for the {"$op": operand} form.
func operatorClause(path string, m map[string]any) (Op, any, bool, error) {
	var opKey string
	for k := range m {
		if strings.HasPrefix(k, "$") {
			opKey = k
			break
		}
	}
	if opKey == "" {
		return "", nil, false, nil
	}
	if len(m) != 1 {
		return "", nil, false, errs.New(errs.IDInvalidArgs, errs.DomainValidation, errs.CategoryUser,
			"operator clause must contain exactly one operator").
			WithDetail("path", path).
			WithDetail("keys", fmt.Sprintf("%d", len(m)))
	}
	op, known := comparisonOps[opKey]
	if !known {
		return "", nil, false, errs.New(errs.IDInvalidArgs, errs.DomainValidation, errs.CategoryUser,
			"unknown filter operator").
			WithDetail("operator", opKey).
			WithDetail("path", path)
	}
	return op, m[opKey], true, nil
}

func makeCondition(path string, op Op, operand any) (Condition, error) {
	switch op {
	case OpIn:
		vals, ok := asSlice(operand)
		if !ok {
			return Condition{}, errs.New(errs.IDInvalidArgs, errs.DomainValidation, errs.CategoryUser,
				"$in operand must be a list").WithDetail("path", path)
		}
		return Condition{Key: path, Op: OpIn, Values: vals}, nil
	case OpGt, OpGte, OpLt, OpLte:
		if _, ok := asNumber(operand); !ok {
			return Condition{}, errs.New(errs.IDInvalidArgs, errs.DomainValidation, errs.CategoryUser,
				"range operand must be numeric").
				WithDetail("operator", string(op)).
				WithDetail("path", path)
		}
		return Condition{Key: path, Op: op, Value: operand}, nil
	default:
		if operand == nil && op == OpEq {
			return Condition{Key: path, Op: OpIsNull}, nil
		}
		return Condition{Key: path, Op: op, Value: operand}, nil
	}
}

func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	case []int:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	case []float64:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	default:
		return nil, false
	}
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// Matches evaluates the condition against flattened metadata. Used by
// backends that cannot push the predicate into the query.
func (c Condition) Matches(flat map[string]any) bool {
	val, present := flat[c.Key]
	switch c.Op {
	case OpIsNull:
		return !present || val == nil
	case OpNe:
		if !present {
			return true
		}
		return !looseEqual(val, c.Value)
	case OpEq:
		return present && looseEqual(val, c.Value)
	case OpIn:
		if !present {
			return false
		}
		for _, want := range c.Values {
			if looseEqual(val, want) {
				return true
			}
		}
		return false
	case OpGt, OpGte, OpLt, OpLte:
		have, ok1 := asNumber(val)
		want, ok2 := asNumber(c.Value)
		if !ok1 || !ok2 {
			return false
		}
		switch c.Op {
		case OpGt:
			return have > want
		case OpGte:
			return have >= want
		case OpLt:
			return have < want
		default:
			return have <= want
		}
	default:
		return false
	}
}

// looseEqual compares values with numeric coercion so that an int filter
// operand matches a float64 decoded from JSON.
func looseEqual(a, b any) bool {
	if an, ok := asNumber(a); ok {
		if bn, ok := asNumber(b); ok {
			return an == bn
		}
		return false
	}
	return a == b
}

// MatchesAll reports whether every condition holds for the record's nested
// metadata.
func MatchesAll(conds []Condition, meta map[string]any) bool {
	flat := metadata.Flatten(meta)
	for _, c := range conds {
		if !c.Matches(flat) {
			return false
		}
	}
	return true
}

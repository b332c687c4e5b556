// Package filter compiles request filters into a conjunctive SQL fragment
// with positional bind parameters. Values never appear in the fragment text.
package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
)

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// columns are the event columns a filter may address directly.
var columns = map[string]struct{}{
	"name": {}, "device_id": {}, "profile_id": {}, "session_id": {},
	"path": {}, "origin": {}, "referrer": {}, "referrer_name": {}, "referrer_type": {},
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {}, "utm_term": {}, "utm_content": {},
	"browser": {}, "browser_version": {}, "os": {}, "os_version": {},
	"device": {}, "brand": {}, "model": {},
	"country": {}, "region": {}, "city": {},
}

var comparisons = map[domain.Operator]string{
	domain.OpEq:  "=",
	domain.OpNe:  "!=",
	domain.OpGt:  ">",
	domain.OpGte: ">=",
	domain.OpLt:  "<",
	domain.OpLte: "<=",
}

// Compile translates filters into "a AND b AND ..." and the args for its
// placeholders in order. No filters yields an empty fragment.
func Compile(filters []domain.Filter) (string, []any, error) {
	parts := make([]string, 0, len(filters))
	var args []any

	for i, f := range filters {
		sql, fargs, err := compileOne(f)
		if err != nil {
			return "", nil, fmt.Errorf("filter %d: %w", i, err)
		}
		parts = append(parts, sql)
		args = append(args, fargs...)
	}

	return strings.Join(parts, " AND "), args, nil
}

// Validate reports whether the filters would compile.
func Validate(filters []domain.Filter) error {
	_, _, err := Compile(filters)
	return err
}

func compileOne(f domain.Filter) (string, []any, error) {
	target, targetArgs, err := resolveField(f.Field, f.Operator)
	if err != nil {
		return "", nil, err
	}
	args := append([]any{}, targetArgs...)
	isProperty := len(targetArgs) > 0

	switch f.Operator {
	case domain.OpEq, domain.OpNe, domain.OpGt, domain.OpGte, domain.OpLt, domain.OpLte:
		var v any
		switch {
		case isProperty && f.Operator.IsOrdering():
			v, err = toFloat(f.Value)
		case isProperty:
			v, err = toString(f.Value)
		default:
			v, err = scalar(f.Value)
		}
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%s %s ?", target, comparisons[f.Operator]), append(args, v), nil

	case domain.OpIn, domain.OpNin:
		values, err := toStrings(f.Value)
		if err != nil {
			return "", nil, err
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
		op := "IN"
		if f.Operator == domain.OpNin {
			op = "NOT IN"
		}
		for _, v := range values {
			args = append(args, v)
		}
		return fmt.Sprintf("%s %s (%s)", target, op, placeholders), args, nil

	case domain.OpContains, domain.OpNotContains:
		s, err := toString(f.Value)
		if err != nil {
			return "", nil, err
		}
		op := "LIKE"
		if f.Operator == domain.OpNotContains {
			op = "NOT LIKE"
		}
		return fmt.Sprintf("%s %s ?", target, op), append(args, "%"+escapeLike(s)+"%"), nil
	}

	return "", nil, fmt.Errorf("%w: %q", domain.ErrInvalidOperator, f.Operator)
}

// resolveField returns the SQL expression for a field and the args it binds.
// properties.a.b extracts the nested key a.b from the properties blob, as a
// float for ordering operators and as a string otherwise.
func resolveField(field string, op domain.Operator) (string, []any, error) {
	if _, ok := comparisons[op]; !ok && !isSetOrSubstring(op) {
		return "", nil, fmt.Errorf("%w: %q", domain.ErrInvalidOperator, op)
	}

	key, isProperty := strings.CutPrefix(field, domain.PropertiesPrefix)
	if !isProperty {
		if _, ok := columns[field]; !ok || !identifier.MatchString(field) {
			return "", nil, fmt.Errorf("%w: %q", domain.ErrInvalidField, field)
		}
		return field, nil, nil
	}

	segments := strings.Split(key, ".")
	args := make([]any, 0, len(segments))
	for _, s := range segments {
		if s == "" {
			return "", nil, fmt.Errorf("%w: %q", domain.ErrInvalidField, field)
		}
		args = append(args, s)
	}

	fn := "JSONExtractString"
	if op.IsOrdering() {
		fn = "JSONExtractFloat"
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	return fmt.Sprintf("%s(properties, %s)", fn, placeholders), args, nil
}

func isSetOrSubstring(op domain.Operator) bool {
	switch op {
	case domain.OpIn, domain.OpNin, domain.OpContains, domain.OpNotContains:
		return true
	}
	return false
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scalar(v any) (any, error) {
	switch t := v.(type) {
	case string, bool, float64, float32, int, int32, int64, uint, uint32, uint64:
		return t, nil
	case json.Number:
		return t.String(), nil
	}
	return nil, fmt.Errorf("%w: expected a scalar, got %T", domain.ErrInvalidValue, v)
}

func toString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case json.Number:
		return t.String(), nil
	}
	return "", fmt.Errorf("%w: expected a string, got %T", domain.ErrInvalidValue, v)
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", domain.ErrInvalidValue, t)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%w: expected a number, got %T", domain.ErrInvalidValue, v)
}

func toStrings(v any) ([]string, error) {
	var out []string
	switch t := v.(type) {
	case []string:
		out = t
	case []any:
		out = make([]string, 0, len(t))
		for _, item := range t {
			s, err := toString(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
	default:
		return nil, fmt.Errorf("%w: expected a list, got %T", domain.ErrInvalidValue, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty list", domain.ErrInvalidValue)
	}
	return out, nil
}

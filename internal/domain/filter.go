package domain

// Operator is a filter comparison operator.
type Operator string

const (
	OpEq          Operator = "eq"
	OpNe          Operator = "ne"
	OpGt          Operator = "gt"
	OpGte         Operator = "gte"
	OpLt          Operator = "lt"
	OpLte         Operator = "lte"
	OpIn          Operator = "in"
	OpNin         Operator = "nin"
	OpContains    Operator = "contains"
	OpNotContains Operator = "notContains"
)

// PropertiesPrefix marks a filter field that addresses the custom
// properties blob instead of a column.
const PropertiesPrefix = "properties."

// Filter is a request-scoped predicate over events.
type Filter struct {
	Field    string   `json:"field" validate:"required"`
	Operator Operator `json:"operator" validate:"required"`
	Value    any      `json:"value"`
}

// IsOrdering reports whether the operator compares magnitudes.
func (o Operator) IsOrdering() bool {
	switch o {
	case OpGt, OpGte, OpLt, OpLte:
		return true
	}
	return false
}

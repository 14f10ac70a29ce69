// Package filter models metadata filters as a conjunction of equality and
// numeric-range predicates, translated by the store into FT.SEARCH
// pre-filters.
package filter

// Expression is a conjunction of conditions. The zero value matches
// everything.
type Expression struct {
	conds []Condition
}

// With returns a copy of the expression extended with c.
func (e Expression) With(c Condition) Expression {
	conds := make([]Condition, 0, len(e.conds)+1)
	conds = append(conds, e.conds...)
	conds = append(conds, c)
	return Expression{conds: conds}
}

// Conditions returns the conjunction members.
func (e Expression) Conditions() []Condition { return e.conds }

// IsEmpty reports whether the expression has no conditions.
func (e Expression) IsEmpty() bool { return len(e.conds) == 0 }

// Condition is a single clause: either a tag match or a numeric range.
type Condition struct {
	key       string
	match     string
	rangeExpr *Range
}

// NewMatch creates an exact tag match condition.
func NewMatch(key, value string) Condition {
	return Condition{key: key, match: value}
}

// NewRange creates a numeric range condition. Either bound may be nil;
// a nil bound is open.
func NewRange(key string, gte, lte *float64) Condition {
	return Condition{key: key, rangeExpr: &Range{gte: gte, lte: lte}}
}

// GTE creates a lower-bounded range condition.
func GTE(key string, v float64) Condition {
	return NewRange(key, &v, nil)
}

// Key returns the field name.
func (c Condition) Key() string { return c.key }

// Match returns the exact match value.
func (c Condition) Match() string { return c.match }

// Range returns the numeric range expression.
func (c Condition) Range() *Range { return c.rangeExpr }

// IsMatch reports whether this is a match condition.
func (c Condition) IsMatch() bool { return c.match != "" }

// IsRange reports whether this is a range condition.
func (c Condition) IsRange() bool { return c.rangeExpr != nil }

// Range is an inclusive numeric range. Nil bounds are open.
type Range struct {
	gte *float64
	lte *float64
}

// GTE returns the lower inclusive bound.
func (r Range) GTE() *float64 { return r.gte }

// LTE returns the upper inclusive bound.
func (r Range) LTE() *float64 { return r.lte }

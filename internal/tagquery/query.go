package tagquery

import "time"

// Strategy names the evaluation mode a Preset was authored with.
type Strategy string

const (
	StrategyOr       Strategy = "or"
	StrategyAnd      Strategy = "and"
	StrategyAdvanced Strategy = "advanced"
)

// Query is the object form of a tag expression, the shape presets and
// OAuth scope derivation are expressed in:
// {$and|$or|$not|$in|tag|$advanced}.
type Query struct {
	And      []Query  `json:"$and,omitempty" yaml:"$and,omitempty"`
	Or       []Query  `json:"$or,omitempty" yaml:"$or,omitempty"`
	Not      *Query   `json:"$not,omitempty" yaml:"$not,omitempty"`
	In       []string `json:"$in,omitempty" yaml:"$in,omitempty"`
	Tag      string   `json:"tag,omitempty" yaml:"tag,omitempty"`
	Advanced string   `json:"$advanced,omitempty" yaml:"$advanced,omitempty"`
}

// Preset is a named, reusable tag expression with evaluation-strategy
// metadata.
type Preset struct {
	Name        string     `json:"name" yaml:"name"`
	Strategy    Strategy   `json:"strategy" yaml:"strategy"`
	TagQuery    Query      `json:"tagQuery" yaml:"tagQuery"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	LastUsed    *time.Time `json:"lastUsed,omitempty" yaml:"lastUsed,omitempty"`
}

// QueryToExpression converts the object form into the recursive Expr sum
// type, so object-form presets and string-form filters share one evaluator.
func QueryToExpression(q Query) (Expr, error) {
	if q.Advanced != "" {
		return ParseAdvanced(q.Advanced)
	}
	if q.Tag != "" {
		return Tag(q.Tag), nil
	}
	if len(q.In) > 0 {
		children := make(Or, 0, len(q.In))
		for _, t := range q.In {
			children = append(children, Tag(t))
		}
		return children, nil
	}
	if len(q.And) > 0 {
		children := make(And, 0, len(q.And))
		for _, sub := range q.And {
			child, err := QueryToExpression(sub)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return children, nil
	}
	if len(q.Or) > 0 {
		children := make(Or, 0, len(q.Or))
		for _, sub := range q.Or {
			child, err := QueryToExpression(sub)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return children, nil
	}
	if q.Not != nil {
		child, err := QueryToExpression(*q.Not)
		if err != nil {
			return nil, err
		}
		return Not{Child: child}, nil
	}
	return nil, nil
}

// EvaluateTagQueryObject evaluates the object form directly against tags,
// matching nothing for the empty query per the same rule as the string form.
func EvaluateTagQueryObject(q Query, tags []string) (bool, error) {
	expr, err := QueryToExpression(q)
	if err != nil {
		return false, err
	}
	return Evaluate(expr, tags), nil
}

// PresetToExpression resolves a preset to its Expr form. Strategy is
// informational metadata about how the preset was authored; TagQuery
// (object form, possibly an $advanced string) is the source of truth.
func PresetToExpression(p Preset) (Expr, error) {
	return QueryToExpression(p.TagQuery)
}

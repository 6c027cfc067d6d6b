package query

// Optimize runs local rewrite rules to a fix point. The loop terminates
// when one pass produces a structurally equal tree:
//
//	Filter(Filter(X,p1),p2)     -> Filter(X, p1 AND p2)
//	Filter(Projection(X,e), p)  -> Projection(Filter(X, p), e)
//	Projection(Projection(X,_), e) -> Projection(X, e)
func Optimize(plan LogicalPlan) LogicalPlan {
	current := plan
	for {
		next := rewrite(current)
		if next.Equal(current) {
			return next
		}
		current = next
	}
}

// rewrite applies one bottom-up pass of the rule set.
func rewrite(plan LogicalPlan) LogicalPlan {
	switch p := plan.(type) {
	case *LogicalFilter:
		return applyRules(&LogicalFilter{Input: rewrite(p.Input), Predicate: p.Predicate})
	case *LogicalProjection:
		return applyRules(&LogicalProjection{Input: rewrite(p.Input), Exprs: p.Exprs})
	default:
		return plan
	}
}

func applyRules(plan LogicalPlan) LogicalPlan {
	switch p := plan.(type) {
	case *LogicalFilter:
		switch input := p.Input.(type) {
		case *LogicalFilter:
			// Merge stacked filters into one conjunction.
			return &LogicalFilter{
				Input: input.Input,
				Predicate: &BoundBinary{
					Op:    OpAnd,
					Left:  input.Predicate,
					Right: p.Predicate,
				},
			}
		case *LogicalProjection:
			// Push the filter below the projection.
			return &LogicalProjection{
				Input: &LogicalFilter{Input: input.Input, Predicate: p.Predicate},
				Exprs: input.Exprs,
			}
		}
	case *LogicalProjection:
		if input, ok := p.Input.(*LogicalProjection); ok {
			// The outer projection wins; the inner one is redundant.
			return &LogicalProjection{Input: input.Input, Exprs: p.Exprs}
		}
	}
	return plan
}

package planner

// Plan is the query shape chosen for a request: RawPlan or BucketedAggregatePlan.
type Plan interface {
	isPlan()
}

// RawPlan projects rows directly with no grouping.
type RawPlan struct {
	Limit int
}

// BucketedAggregatePlan groups rows by calendar day of the bucket column and
// aggregates every value axis.
type BucketedAggregatePlan struct {
	BucketExpr  string
	Aggregation Aggregation
}

func (RawPlan) isPlan()               {}
func (BucketedAggregatePlan) isPlan() {}

// SelectPlan chooses the plan. The only input to the choice is whether the
// category axis is the table's bucket column. The limit is checked for both
// plans even though only RawPlan uses it.
func SelectPlan(req ChartRequest, mapper ExpressionMapper, limits Limits) (Plan, error) {
	limit, err := limits.Resolve(req.Limit)
	if err != nil {
		return nil, err
	}

	if mapper.IsBucketColumn(req.CategoryAxis) {
		return BucketedAggregatePlan{
			BucketExpr:  mapper.ReadExpression(req.CategoryAxis),
			Aggregation: req.EffectiveAggregation(),
		}, nil
	}
	return RawPlan{Limit: limit}, nil
}

// PlanKind names a plan for logs and metrics.
func PlanKind(plan Plan) string {
	switch plan.(type) {
	case BucketedAggregatePlan:
		return "bucketed"
	case RawPlan:
		return "raw"
	default:
		return "unknown"
	}
}

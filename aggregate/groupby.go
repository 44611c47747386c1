package aggregate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aaronlmathis/goplan/core"
)

type column struct {
	output     string
	aggregator Aggregator
}

// GroupBy groups records by one or more fields and aggregates each group.
type GroupBy struct {
	groupFields []string
	columns     []column
}

// NewGroupBy creates a GroupBy over groupFields.
func NewGroupBy(groupFields ...string) *GroupBy {
	return &GroupBy{groupFields: groupFields}
}

// Count adds the number of records in the group as outputField.
func (g *GroupBy) Count(outputField string) *GroupBy {
	return g.Aggregate(outputField, &CountAggregator{})
}

// CountTrue adds the number of records whose field is true.
func (g *GroupBy) CountTrue(field, outputField string) *GroupBy {
	return g.Aggregate(outputField, &CountTrueAggregator{Field: field})
}

// Sum adds the sum of a numeric field.
func (g *GroupBy) Sum(field, outputField string) *GroupBy {
	return g.Aggregate(outputField, &SumAggregator{Field: field})
}

// Avg adds the mean of a numeric field.
func (g *GroupBy) Avg(field, outputField string) *GroupBy {
	return g.Aggregate(outputField, &AvgAggregator{Field: field})
}

// Min adds the minimum of a numeric field.
func (g *GroupBy) Min(field, outputField string) *GroupBy {
	return g.Aggregate(outputField, &MinAggregator{Field: field})
}

// Max adds the maximum of a numeric field.
func (g *GroupBy) Max(field, outputField string) *GroupBy {
	return g.Aggregate(outputField, &MaxAggregator{Field: field})
}

// Aggregate adds a custom aggregator.
func (g *GroupBy) Aggregate(outputField string, aggregator Aggregator) *GroupBy {
	g.columns = append(g.columns, column{output: outputField, aggregator: aggregator})
	return g
}

type group struct {
	key         []string
	values      core.Record
	aggregators []Aggregator
}

// Process aggregates records and returns one record per group, ordered by group key.
// Each result holds the group fields followed by the aggregated columns.
func (g *GroupBy) Process(ctx context.Context, records []core.Record) ([]core.Record, error) {
	groups := make(map[string]*group)

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		key := g.groupKey(record)
		joined := strings.Join(key, "\x00")
		grp, exists := groups[joined]
		if !exists {
			grp = &group{key: key, values: make(core.Record, len(g.groupFields))}
			for _, field := range g.groupFields {
				grp.values[field] = record[field]
			}
			for _, col := range g.columns {
				grp.aggregators = append(grp.aggregators, col.aggregator.Clone())
			}
			groups[joined] = grp
		}

		for i, aggregator := range grp.aggregators {
			if err := aggregator.Add(record); err != nil {
				return nil, fmt.Errorf("aggregation error for field %s: %w", g.columns[i].output, err)
			}
		}
	}

	ordered := make([]*group, 0, len(groups))
	for _, grp := range groups {
		ordered = append(ordered, grp)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i].key, ordered[j].key
		for k := range a {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})

	results := make([]core.Record, 0, len(ordered))
	for _, grp := range ordered {
		result := make(core.Record, len(g.groupFields)+len(g.columns))
		for k, v := range grp.values {
			result[k] = v
		}
		for i, aggregator := range grp.aggregators {
			result[g.columns[i].output] = aggregator.Result()
		}
		results = append(results, result)
	}
	return results, nil
}

func (g *GroupBy) groupKey(record core.Record) []string {
	key := make([]string, len(g.groupFields))
	for i, field := range g.groupFields {
		if value, exists := record[field]; exists && value != nil {
			key[i] = fmt.Sprintf("%v", value)
		}
	}
	return key
}

// CountAggregator counts records.
type CountAggregator struct {
	count int64
}

func (c *CountAggregator) Add(record core.Record) error {
	c.count++
	return nil
}

func (c *CountAggregator) Result() interface{} { return c.count }

func (c *CountAggregator) Clone() Aggregator { return &CountAggregator{} }

// CountTrueAggregator counts records whose Field is the boolean true.
type CountTrueAggregator struct {
	Field string
	count int64
}

func (c *CountTrueAggregator) Add(record core.Record) error {
	if b, ok := record[c.Field].(bool); ok && b {
		c.count++
	}
	return nil
}

func (c *CountTrueAggregator) Result() interface{} { return c.count }

func (c *CountTrueAggregator) Clone() Aggregator { return &CountTrueAggregator{Field: c.Field} }

// SumAggregator sums a numeric field. Missing and nil values are skipped.
type SumAggregator struct {
	Field string
	sum   float64
}

func (s *SumAggregator) Add(record core.Record) error {
	v, ok, err := numericField(record, s.Field)
	if err != nil || !ok {
		return err
	}
	s.sum += v
	return nil
}

func (s *SumAggregator) Result() interface{} { return s.sum }

func (s *SumAggregator) Clone() Aggregator { return &SumAggregator{Field: s.Field} }

// AvgAggregator averages a numeric field. An empty group yields nil.
type AvgAggregator struct {
	Field string
	sum   float64
	count int64
}

func (a *AvgAggregator) Add(record core.Record) error {
	v, ok, err := numericField(record, a.Field)
	if err != nil || !ok {
		return err
	}
	a.sum += v
	a.count++
	return nil
}

func (a *AvgAggregator) Result() interface{} {
	if a.count == 0 {
		return nil
	}
	return a.sum / float64(a.count)
}

func (a *AvgAggregator) Clone() Aggregator { return &AvgAggregator{Field: a.Field} }

// MinAggregator keeps the smallest value of a numeric field.
type MinAggregator struct {
	Field string
	min   float64
	set   bool
}

func (m *MinAggregator) Add(record core.Record) error {
	v, ok, err := numericField(record, m.Field)
	if err != nil || !ok {
		return err
	}
	if !m.set || v < m.min {
		m.min = v
		m.set = true
	}
	return nil
}

func (m *MinAggregator) Result() interface{} {
	if !m.set {
		return nil
	}
	return m.min
}

func (m *MinAggregator) Clone() Aggregator { return &MinAggregator{Field: m.Field} }

// MaxAggregator keeps the largest value of a numeric field.
type MaxAggregator struct {
	Field string
	max   float64
	set   bool
}

func (m *MaxAggregator) Add(record core.Record) error {
	v, ok, err := numericField(record, m.Field)
	if err != nil || !ok {
		return err
	}
	if !m.set || v > m.max {
		m.max = v
		m.set = true
	}
	return nil
}

func (m *MaxAggregator) Result() interface{} {
	if !m.set {
		return nil
	}
	return m.max
}

func (m *MaxAggregator) Clone() Aggregator { return &MaxAggregator{Field: m.Field} }

// numericField reads field as float64; ok is false when it is missing or nil.
func numericField(record core.Record, field string) (float64, bool, error) {
	value, exists := record[field]
	if !exists || value == nil {
		return 0, false, nil
	}
	switch v := value.(type) {
	case int:
		return float64(v), true, nil
	case int32:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	case float32:
		return float64(v), true, nil
	case float64:
		return v, true, nil
	default:
		return 0, false, fmt.Errorf("cannot convert %T to float64", value)
	}
}

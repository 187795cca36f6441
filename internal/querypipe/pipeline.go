package querypipe

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/triql/internal/queryir"
)

// Target is the target name used in errors.
const Target = "pipeline"

// Pipeline is a compiled aggregation over Collection.
type Pipeline struct {
	Collection string
	Stages     []bson.D
}

// MarshalExtJSON renders the pipeline as relaxed Extended JSON in the
// shape of an aggregate command.
func (p Pipeline) MarshalExtJSON() ([]byte, error) {
	stages := make(bson.A, len(p.Stages))
	for i, s := range p.Stages {
		stages[i] = s
	}
	return bson.MarshalExtJSON(bson.D{
		{Key: "aggregate", Value: p.Collection},
		{Key: "pipeline", Value: stages},
	}, false, false)
}

// Compile renders q as a pipeline.
func Compile(q *queryir.Query) (Pipeline, error) {
	if q == nil {
		return Pipeline{}, fmt.Errorf("cannot compile nil query")
	}
	b := NewBuilder(q)
	stages, err := b.build()
	if err != nil {
		return Pipeline{}, err
	}
	return Pipeline{Collection: q.Table, Stages: stages}, nil
}

// build resolves every clause, then assembles the stages. Resolution must
// finish first because it populates the addFields and $group stages.
func (b *Builder) build() ([]bson.D, error) {
	lookups, err := b.lookups()
	if err != nil {
		return nil, err
	}
	if err := b.registerGroupKeys(); err != nil {
		return nil, err
	}
	project, err := b.projection()
	if err != nil {
		return nil, err
	}

	var match, having any
	if b.q.Filters != nil {
		if match, err = b.predicate(b.q.Filters, phasePre); err != nil {
			return nil, fmt.Errorf("compile filter: %w", err)
		}
	}
	if b.q.Having != nil {
		if having, err = b.predicate(b.q.Having, phasePost); err != nil {
			return nil, fmt.Errorf("compile having: %w", err)
		}
	}
	sortKeys, sortBefore, err := b.sortKeys(project)
	if err != nil {
		return nil, err
	}
	if sortBefore && b.q.Distinct {
		return nil, queryir.NewRenderError("DISTINCT cannot order by a column outside FETCH", Target)
	}

	stages := lookups
	if len(b.pre) > 0 {
		stages = append(stages, bson.D{{Key: "$addFields", Value: b.pre}})
	}
	if match != nil {
		stages = append(stages, bson.D{{Key: "$match", Value: bson.D{{Key: "$expr", Value: match}}}})
	}
	if b.grouped() {
		group := append(bson.D{{Key: "_id", Value: b.groupID}}, b.accumulators...)
		stages = append(stages, bson.D{{Key: "$group", Value: group}})
		stages = append(stages, bson.D{{Key: "$addFields", Value: b.exposed}})
	}
	if len(b.post) > 0 {
		stages = append(stages, bson.D{{Key: "$addFields", Value: b.post}})
	}
	if having != nil {
		stages = append(stages, bson.D{{Key: "$match", Value: bson.D{{Key: "$expr", Value: having}}}})
	}

	paging := b.paging(sortKeys)
	if sortBefore {
		stages = append(stages, paging...)
	}
	stages = append(stages, bson.D{{Key: "$project", Value: project.doc}})
	if b.q.Distinct {
		stages = append(stages,
			bson.D{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$$ROOT"}}}},
			bson.D{{Key: "$replaceRoot", Value: bson.D{{Key: "newRoot", Value: "$_id"}}}},
		)
	}
	if !sortBefore {
		stages = append(stages, paging...)
	}
	return stages, nil
}

// lookups renders one $lookup/$unwind pair per INCLUDE edge. The joined
// document lands in a field named after the child table.
func (b *Builder) lookups() ([]bson.D, error) {
	var stages []bson.D
	for _, inc := range b.q.Includes {
		stages = append(stages, bson.D{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: inc.ChildTable},
			{Key: "localField", Value: b.fieldPath(inc.ParentTable, inc.ParentKey)},
			{Key: "foreignField", Value: inc.ChildKey},
			{Key: "as", Value: inc.ChildTable},
		}}})
		switch inc.Kind {
		case queryir.JoinInner:
			stages = append(stages, bson.D{{Key: "$unwind", Value: "$" + inc.ChildTable}})
		case queryir.JoinLeft, "":
			stages = append(stages, bson.D{{Key: "$unwind", Value: bson.D{
				{Key: "path", Value: "$" + inc.ChildTable},
				{Key: "preserveNullAndEmptyArrays", Value: true},
			}}})
		default:
			return nil, queryir.NewUnsupportedOperatorError(string(inc.Kind)+" JOIN", Target)
		}
	}
	return stages, nil
}

func (b *Builder) paging(sortKeys bson.D) []bson.D {
	var stages []bson.D
	if len(sortKeys) > 0 {
		stages = append(stages, bson.D{{Key: "$sort", Value: sortKeys}})
	}
	if b.q.Offset != nil {
		stages = append(stages, bson.D{{Key: "$skip", Value: int64(*b.q.Offset)}})
	}
	switch {
	case b.q.Limit == nil:
	case *b.q.Limit == 0:
		// $limit rejects zero.
		stages = append(stages, bson.D{{Key: "$match", Value: bson.D{{Key: "$expr", Value: false}}}})
	default:
		stages = append(stages, bson.D{{Key: "$limit", Value: int64(*b.q.Limit)}})
	}
	return stages
}

// OutputFields lists the keys of the final $project stage in order,
// skipping an excluded _id. It returns nil for a pipeline that projects
// whole documents.
func (p Pipeline) OutputFields() []string {
	for i := len(p.Stages) - 1; i >= 0; i-- {
		stage := p.Stages[i]
		if len(stage) != 1 || stage[0].Key != "$project" {
			continue
		}
		doc, ok := stage[0].Value.(bson.D)
		if !ok {
			return nil
		}
		var fields []string
		for _, e := range doc {
			if e.Key == "_id" && e.Value == int64(0) {
				continue
			}
			fields = append(fields, e.Key)
		}
		return fields
	}
	return nil
}

// Package schema defines the schema-lookup collaborator used to resolve
// INCLUDE hops into join key pairs.
//
// Resolvers answer one question: which columns relate two tables? The
// parser asks once per hop and tries both directions, so a Resolver only
// needs to report relations from the referenced (parent) table's side.
package schema

import (
	"context"
	"strings"
)

// KeyPair joins two tables: <parent>.<ParentKey> = <child>.<ChildKey>.
type KeyPair struct {
	ParentKey string
	ChildKey  string
}

// Resolver looks up the key pair relating parent and child.
//
// found is false when no relation exists. err is reserved for lookup
// failures (cancelled context, database errors); it aborts compilation.
type Resolver interface {
	ResolveForeignKey(ctx context.Context, parent, child string) (pair KeyPair, found bool, err error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, parent, child string) (KeyPair, bool, error)

// ResolveForeignKey calls f.
func (f ResolverFunc) ResolveForeignKey(ctx context.Context, parent, child string) (KeyPair, bool, error) {
	return f(ctx, parent, child)
}

// Relation is a foreign key: Table.Column references
// References.ReferencedColumn.
type Relation struct {
	Table            string `json:"table" yaml:"table"`
	Column           string `json:"column" yaml:"column"`
	References       string `json:"references" yaml:"references"`
	ReferencedColumn string `json:"referenced_column" yaml:"referenced_column"`
}

// Static resolves key pairs from a fixed list of relations, typically
// loaded from configuration. It is safe for concurrent use because it is
// never mutated after construction.
type Static struct {
	relations []Relation
}

// NewStatic creates a resolver over relations.
func NewStatic(relations ...Relation) *Static {
	return &Static{relations: append([]Relation(nil), relations...)}
}

// ResolveForeignKey finds a relation where child references parent.
func (s *Static) ResolveForeignKey(ctx context.Context, parent, child string) (KeyPair, bool, error) {
	if err := ctx.Err(); err != nil {
		return KeyPair{}, false, err
	}
	for _, rel := range s.relations {
		if strings.EqualFold(rel.References, parent) && strings.EqualFold(rel.Table, child) {
			return KeyPair{ParentKey: rel.ReferencedColumn, ChildKey: rel.Column}, true, nil
		}
	}
	return KeyPair{}, false, nil
}

// Relations returns a copy of the configured relations.
func (s *Static) Relations() []Relation {
	return append([]Relation(nil), s.relations...)
}

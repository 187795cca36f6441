package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/triql/internal/queryir"
	"github.com/roach88/triql/internal/scan"
	"github.com/roach88/triql/internal/schema"
)

// resolveIncludes turns INCLUDE entries ("orders.items [INNER]", ...) into
// join edges starting at root. Each hop is resolved once; an edge shared by
// two entries is emitted once, with the join kind of its first appearance.
func resolveIncludes(ctx context.Context, root, body string, resolver schema.Resolver) ([]queryir.Include, error) {
	entries := scan.SplitTopLevel(body, ',')
	if len(entries) == 0 {
		return nil, queryir.NewSyntaxError("INCLUDE requires at least one table", body)
	}

	var edges []queryir.Include
	seen := make(map[string]bool)
	for _, entry := range entries {
		path, kind, err := parseIncludeEntry(entry)
		if err != nil {
			return nil, err
		}
		parent := root
		for _, child := range path {
			key := strings.ToLower(parent + "\x00" + child)
			if seen[key] {
				parent = child
				continue
			}
			edge, err := resolveHop(ctx, resolver, parent, child)
			if err != nil {
				return nil, err
			}
			edge.Kind = kind
			edges = append(edges, edge)
			seen[key] = true
			parent = child
		}
	}
	return edges, nil
}

func parseIncludeEntry(entry string) ([]string, queryir.JoinKind, error) {
	fields := scan.SplitTopLevel(entry, ' ')
	kind := queryir.JoinLeft
	switch len(fields) {
	case 1:
	case 2:
		k, ok := queryir.ParseJoinKind(fields[1])
		if !ok {
			return nil, "", queryir.NewSyntaxError(fmt.Sprintf("unknown join kind %q", fields[1]), entry)
		}
		kind = k
	default:
		return nil, "", queryir.NewSyntaxError("malformed INCLUDE entry", entry)
	}

	path := strings.Split(fields[0], ".")
	for _, table := range path {
		if !isPlainName(table) {
			return nil, "", queryir.NewSyntaxError("invalid table name in INCLUDE", entry)
		}
	}
	return path, kind, nil
}

// resolveHop asks the resolver for parent->child, then child->parent with
// the key pair swapped.
func resolveHop(ctx context.Context, resolver schema.Resolver, parent, child string) (queryir.Include, error) {
	if resolver == nil {
		return queryir.Include{}, queryir.NewSchemaResolutionError(parent, child)
	}
	pair, found, err := resolver.ResolveForeignKey(ctx, parent, child)
	if err != nil {
		return queryir.Include{}, fmt.Errorf("resolve %s -> %s: %w", parent, child, err)
	}
	if !found {
		rev, ok, err := resolver.ResolveForeignKey(ctx, child, parent)
		if err != nil {
			return queryir.Include{}, fmt.Errorf("resolve %s -> %s: %w", child, parent, err)
		}
		if !ok {
			return queryir.Include{}, queryir.NewSchemaResolutionError(parent, child)
		}
		pair = schema.KeyPair{ParentKey: rev.ChildKey, ChildKey: rev.ParentKey}
	}
	return queryir.Include{
		ParentTable: parent,
		ParentKey:   pair.ParentKey,
		ChildTable:  child,
		ChildKey:    pair.ChildKey,
	}, nil
}

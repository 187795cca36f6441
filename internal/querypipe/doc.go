// Package querypipe renders a queryir.Query as a document-store
// aggregation pipeline.
//
// Stages are emitted in a fixed order, with empty stages elided:
//
//	$lookup/$unwind   one pair per INCLUDE edge
//	$addFields        computed fields needed before grouping
//	$match            FILTER, as a $expr predicate
//	$group            _id = grouped columns, one accumulator per aggregate
//	$addFields        grouped _id.* fields re-exposed under their names
//	$addFields        computed fields over grouped values
//	$match            HAVING
//	$project          FETCH columns, _id suppressed unless requested
//	$sort/$skip/$limit
//
// Field resolution is not pure. Resolving a function call registers a
// computed field in the addFields stage of the current phase and yields a
// reference to it; resolving an aggregate registers an accumulator in the
// $group stage. That state lives in a Builder, one per compilation.
package querypipe

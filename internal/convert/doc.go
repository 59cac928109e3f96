// Package convert interprets dataset mappings: it turns raw source rows into
// entities of the target model.
//
// Conversion of one attribute runs through these steps:
//
//  1. resolve the source expression against the row ([ResolveValue])
//  2. for reference types, build the reference structure ([ExtractReference])
//     and move every field except bronwaarde into broninfo ([CleanReference])
//  3. apply the declared filters in order
//  4. construct the typed value; a failing construction is logged and the
//     attribute becomes null, the row itself is never dropped
package convert

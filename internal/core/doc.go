// Package core holds the data model shared by every stage of an import.
//
// An import reads raw source rows, converts them into target entities and
// validates those entities before they are written to a sink:
//
//	Row -> Injector -> Enricher -> Converter -> Merger -> Validator -> EntityValidator -> sink
//
// # Rows and entities
//
// Both [Row] and [Entity] are generic trees: maps of strings to scalars,
// nested maps ([]any or map[string]any) as produced by JSON decoding or by
// database JSON columns. [Lookup] folds a dot-separated path over such a tree.
//
// # Datasets
//
// A [Dataset] is the declarative description of one import: which catalogue
// and entity it produces, where the rows come from ([Source]) and how each
// target attribute is derived from a row ([AttributeMapping]). Datasets are
// loaded once per run with [LoadDataset] and never modified afterwards,
// except through [Dataset.WithReadConfig] which returns an updated copy.
package core

// Package dataset provides the tabular data model for analyses.
//
// A Table is a named collection of typed columns of equal length. Tables are
// immutable by convention: every transformation (selection, filtering,
// sampling, retyping) returns a new Table and leaves the receiver untouched,
// so a raw dataset loaded once can feed several cleaning pipelines without
// interference. Columns carry explicit per-row missingness rather than
// sentinel values, and categorical columns carry an enumerated level set so
// that downstream model fitting never sees phantom categories.
//
// Loading supports CSV and XLSX from local paths or HTTP URLs, with column
// types inferred (int, then float, then string) from the data. A cleaned
// table can be persisted to a binary cache file and reloaded without
// re-running its cleaning pipeline.
package dataset

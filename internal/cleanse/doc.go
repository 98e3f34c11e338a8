// Package cleanse turns a raw dataset table into a cleaned analysis table
// by applying a declarative rule set: column selection and renaming,
// retyping with enumerated categorical levels, derived columns (buckets,
// transforms, ratios), audited row filters, and deterministic seeded
// sampling.
//
// Rules are declared in the analysis spec file and validated before any
// data is touched. Every row-dropping step records a before/after audit
// entry, and when an identifier column is declared its uniqueness is
// re-checked after every filter, so a pipeline that silently duplicates or
// loses subjects fails loudly.
package cleanse

// Package report renders analysis results into deliverable documents.
//
// A Document aggregates everything one run produced: cleaning audits,
// exploratory summaries, the model comparison, validation outcomes, and an
// optional survival analysis. Renderers turn the document into aligned
// text, CSV coefficient tables, an HTML page, and an XLSX workbook, and a
// JSON manifest records the run identity and outputs for later browsing.
package report

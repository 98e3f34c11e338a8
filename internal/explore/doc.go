// Package explore computes the exploratory summaries an analyst inspects
// before fitting anything: per-column missingness, descriptive statistics,
// Spearman rank correlations, and variance inflation factors for
// collinearity screening.
package explore

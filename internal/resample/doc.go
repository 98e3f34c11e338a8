// Package resample provides internal validation of fitted models by
// bootstrap optimism correction and by seeded holdout splits.
//
// The apparent performance of a model scored on its own training data
// overstates how it will do on new rows. Bootstrap validation estimates
// that optimism by refitting the model on resamples and comparing each
// refit's resample score against its score on the original table; the mean
// gap is subtracted from the apparent statistic. Holdout validation fits on
// a seeded training split and scores the untouched remainder.
//
// Both procedures are deterministic for a fixed seed: replicate index sets
// are drawn sequentially from a single source before any parallel work
// starts, so reruns produce identical corrected statistics regardless of
// worker scheduling.
package resample

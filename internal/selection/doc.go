// Package selection compares candidate model specifications fitted to the
// same table.
//
// Every candidate gets a row of information criteria and its family's
// headline statistic. Nested pairs (one formula's terms a subset of the
// other's, same family) get a likelihood-ratio test; non-nested pairs on
// the same outcome get a Vuong test over per-observation log likelihoods.
// The recommended model is the most parsimonious candidate whose AIC sits
// within a configurable margin of the minimum.
package selection

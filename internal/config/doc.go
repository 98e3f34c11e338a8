// Package config provides application configuration for the analysis toolkit.
//
// Configuration is layered: struct defaults, an optional YAML file, then
// environment variables prefixed with STATPIPE_ (processed by envconfig).
// Statistical policy knobs that the analyses apply by convention — the
// degrees-of-freedom budget, the VIF cutoff, minimum categorical level
// frequency — live in PolicyConfig rather than being hard-coded in the
// fitters, because their exact values are judgment calls that differ between
// analyses.
package config

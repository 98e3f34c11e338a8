// Package model fits regression models over cleaned analysis tables.
//
// A Formula names an outcome column and an ordered list of predictor terms
// (linear, restricted-cubic-spline, or interaction terms); Fit builds the
// design matrix — dummy-coding categorical predictors over their observed
// levels and expanding spline bases at fixed quantile knots — and
// dispatches on the model family:
//
//   - Gaussian (ordinary least squares)
//   - Binomial logit
//   - Proportional-odds ordinal logit
//   - Multinomial logit
//   - Poisson and zero-inflated Poisson counts
//   - Cox proportional hazards (plus Kaplan-Meier estimation)
//
// Every fit returns a Fitted artifact carrying coefficient estimates with
// confidence intervals, family-appropriate goodness-of-fit statistics
// (R²/adjusted R², C-statistic, Nagelkerke R², AIC/BIC, deviance), and for
// continuous outcomes a residual diagnostics view. Fitted models are
// read-only: validation and reporting consume them without mutation.
//
// Fitting fails deliberately rather than silently when the design matrix is
// rank deficient, when a categorical predictor has fewer than two observed
// levels, when rows with missing values reach a complete-case fit, or when
// the requested parameters exceed the caller's degrees-of-freedom budget.
package model

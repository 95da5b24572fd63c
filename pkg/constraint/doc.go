// Package constraint implements the validation rules that turn a base data
// type into a constrained type.
//
// Every rule implements Constraint. Rules are checked in declaration order by
// Check, which reports the first violated rule as a *ValidationError naming
// the rule and the offending value. Values are never coerced or truncated.
//
// Applicability is decided at load time with CheckApplicable: a Pattern on an
// Integer, or a MaximalValue whose bound is a Date on a Real, is a definition
// error rather than a runtime failure.
//
// Unit and ContentType are descriptive and accept every value of a supported
// base. Schema checks well-formedness and, for inline JSON schemas, validates
// the document against the schema.
package constraint

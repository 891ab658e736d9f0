// Package expr parses cell source into the names it reads and, when the
// expression is a top-level function call, a description of that call.
//
// Cell source uses HCL native expression syntax. A leading "=" is accepted
// and stripped so that spreadsheet-style formulas parse unchanged.
package expr

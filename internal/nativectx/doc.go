// Package nativectx implements the in-process execution context. It
// evaluates HCL native syntax with go-cty functions and is the context the
// engine uses for plain local expressions.
//
// Source handed to Call or Run is either a single expression or a body of
// attribute assignments, evaluated in source order; the value of a body is
// the value of its last attribute.
package nativectx

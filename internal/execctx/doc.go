// Package execctx defines the capability contract every execution context
// (language runtime) implements, and the ordered registry the engine uses to
// find them.
package execctx

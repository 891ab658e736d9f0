// Package app contains the core application logic. It wires the document,
// the execution contexts and the scheduler together and runs them either
// once (Run) or as a long-lived HTTP service (Serve), decoupled from any
// specific entrypoint like a CLI.
package app

// Package document is the engine's view of the editable document: the closed
// set of node types it tracks, an in-memory document that reports structural
// changes in batches, and an HCL loader for documents kept on disk.
package document

// Package export writes stored runs and findings as CSV or JSON.
//
// Both exporters take either a slice or a channel; the streaming forms pair
// with store.Storage.FindingsStream so large runs never need to be held in
// memory.
package export

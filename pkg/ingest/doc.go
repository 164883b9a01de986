// Package ingest reads and writes record sets.
//
// CSV is the interchange format of the claim and pre-authorization exports.
// Readers strip a UTF-8 byte order mark, accept stray quotes and rows of any
// width, and turn empty cells into nulls. Writers render trigger list columns
// as JSON arrays so a file can be read back without ambiguity.
//
// JSON Lines is offered for machine consumers: one object per row with keys in
// column order.
package ingest

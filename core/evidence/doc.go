// Package evidence keeps the per-run trail of accepted node outputs.
//
// Every successful completion appends an immutable [Envelope] to its node's
// list and, in the same critical section, refreshes that node's
// [Memory] entry. Join and synthesis nodes read the latest envelope of each
// upstream source and receive a [SynthesisPacket] with a [ConflictEntry]
// for every topic on which those sources disagree.
package evidence

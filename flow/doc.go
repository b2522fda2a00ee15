// Package flow holds the flow document model: nodes, edges, notes and their
// structural invariants.
//
// Documents are treated as values. Code that needs to mutate one works on a
// Clone and hands the original back to roll back.
package flow

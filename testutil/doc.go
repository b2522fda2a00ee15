// Package testutil provides the shared component catalog and flow document
// builders used by package tests.
//
//	doc := testutil.NewFlow("T").
//	    Node("a", "ChatInput", nil).
//	    Node("b", "ChatOutput", nil).
//	    Edge("a", "b", "").
//	    Build()
//	result := validation.ValidateFlow(doc, testutil.Catalog())
package testutil

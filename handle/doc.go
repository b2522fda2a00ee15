// Package handle implements the canonical encoding of edge endpoint handles.
//
// A handle is a small JSON object describing one end of an edge (node id,
// port or field name, and compatible data types). It is stored on the edge as
// a string with keys sorted and every double quote replaced by Sentinel, so
// two handles for the same port always compare equal as strings:
//
//	{œdataTypeœ:œChatInputœ,œidœ:œaœ,œnameœ:œmessageœ,œoutput_typesœ:[œMessageœ]}
//
// New edges reuse the handle of an existing edge on the same port when there
// is one and only synthesize a handle from the catalog otherwise.
package handle

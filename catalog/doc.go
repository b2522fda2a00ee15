// Package catalog models the component catalog: the read-only mapping from a
// component type name to its parameter and output-port schema.
//
// The diff engine and validator consume any Catalog implementation. Map is
// the in-memory one. Catalog files (YAML or JSON) are checked against an
// embedded JSON meta-schema before decoding, and Provider caches the parsed
// snapshot for a TTL:
//
//	p, err := catalog.NewProvider(ctx, catalog.FileSource{Path: "catalog.yaml"}, time.Minute)
//	cat, err := p.Catalog(ctx)
//	schema, err := catalog.Resolve(cat, "ChatInput")
//
// Resolve returns an *UnknownComponentError, matching errors.ErrUnknownComponent,
// with a nearest-name suggestion when the type is not declared.
package catalog

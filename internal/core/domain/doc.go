// Package domain defines the core business entities for Whisper CMS.
//
// This package is part of the hexagonal architecture's innermost layer.
// It defines the fundamental types:
//
//   - Document: An authored document flowing through the ingestion pipeline
//   - IndexRecord: The sectioned projection of a document's front matter
//   - Filter: The MongoDB-like metadata query AST
//   - RequestContext / Recommendations: Per-request state shared with
//     plugins and the theme over the JSON bridge
//   - StreamHandle: An opaque, resolvable content stream token
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. All other packages depend on
// domain, never the reverse. The only non-stdlib imports are small value
// libraries (uuid, the JSON path evaluator, the JSON Patch codec).
package domain

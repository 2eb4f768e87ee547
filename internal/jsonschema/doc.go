// Package jsonschema provides the small subset of JSON Schema that node
// output contracts are written in: type, enum, required, properties, items,
// and local $ref/$defs references.
//
// The main entry points are [Parse], which accepts a schema authored as a
// JSON string or an already-decoded map, and [Validate], which returns a
// list of human-readable violations with JSON-path-like locations.
package jsonschema

// Package utils provides shared low-level helpers used throughout the
// railgraph internals: stringifying arbitrary node payloads, clipping text
// for logs and prompts, and whitespace normalization.
package utils

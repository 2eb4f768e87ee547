// Package parse turns raw node output into structured values. Language
// models and humans pasting from web chats frequently wrap JSON in prose,
// markdown code fences, or schema-style envelopes, so this package applies a
// layered recovery strategy (strict decoding, candidate extraction, automatic
// JSON repair, schema unwrapping) before giving up.
//
// It also holds the payload accessors the engine shares: [ValidationTarget]
// for schema checks, [ExtractText] for quality scoring and prompts,
// [ExtractFinalAnswer] for the run's answer, and [GetByPath] for JSON path
// lookups.
package parse

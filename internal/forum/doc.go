// Package forum defines the canonical post, comment, and request log shapes
// shared by every threadwatch component.
//
// Source adapters normalize their payloads into these types before anything
// downstream sees them; no source-specific field names leak past the adapter
// boundary. The Kind discriminant records which adapter produced a record.
package forum

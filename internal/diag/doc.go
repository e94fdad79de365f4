// Package diag defines the structured diagnostic model the analyzer emits.
//
// # Purpose
//
//   - Provide deterministic, serialisable records for every violation the
//     borrow checker detects.
//   - Offer light-weight utilities (Reporter, Bag) that let the checker emit
//     findings without coupling to storage or formatting layers.
//
// # Scope
//
// Package diag performs no formatting, IO, or CLI integration. Rendering
// lives in internal/diagfmt; orchestration lives in internal/analysis and
// the CLI.
//
// # Data model
//
// Diagnostic is the central record. It carries:
//
//   - Severity – Info, Warning, Error (severity.go).
//   - Code – compact numeric identifier with a stable string form (codes.go).
//   - Message – short, actionable text.
//   - Primary span – the offending program point's source span.
//   - Notes – secondary spans, e.g. "exclusive borrow created here".
//
// Notes must add context rather than repeat the message: for an aliasing
// conflict the primary span is the newer access and the note points at the
// conflicting borrow's creation.
//
// # Emitting
//
// Passes report through a diag.Reporter. BagReporter aggregates into a Bag,
// which supports sorting, deduplication, and capped collection. Keep the
// model deterministic: identical inputs must produce identical bags.
package diag

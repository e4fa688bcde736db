// Package services defines shared utilities consumed by the cycle phases and
// external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp cycle IDs and source names for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     as transient (retry next cycle) or permanent (operator attention).
//
// Use these helpers when wiring new sources or phases so operational behaviour
// (error handling, observability, retries) stays uniform across the cycle.
package services

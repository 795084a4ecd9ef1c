// Package conflicts persists rejected-write payloads under
// .dibs/conflicts/ when the mount is started with --save-conflicts.
// Saving is best-effort: a failure to save a conflict payload is
// logged but never turns a refusal into a harder failure.
package conflicts

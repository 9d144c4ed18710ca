// Package session provides the client-side session and authentication
// lifecycle: deciding whether the current user is authenticated, why a
// previous authentication became invalid, and how to recover (redirect,
// clear state, resynchronize across execution contexts).
//
// Session lifecycle:
//   - SessionStore owns a single durable SessionRecord (credential, user
//     claims, creation and last-activity timestamps). It validates records
//     against absolute age and inactivity thresholds, migrates the legacy
//     two-key layout on start-up, and tracks user activity with throttled
//     writes.
//   - AuthStateMachine is the authoritative view state (loading/ready,
//     authenticated or not, last error, diagnostics). It orchestrates
//     SessionStore, CredentialStore, and Codec, runs the periodic
//     re-validation and credential-expiry sweeps through an injectable
//     Scheduler, and reacts to external store changes so multiple contexts
//     sharing the same Store converge on the same state.
//
// Failure handling:
//   - Classifier maps every remote failure (status code, transport error,
//     timeout) to a FailureKind and to a guaranteed non-empty message. It
//     tries several response-body shapes before falling back to a
//     category-specific sentence, so callers never observe an empty or
//     "undefined" error string.
//   - Guard is the pair of transport hooks: the outbound hook attaches the
//     bearer credential and refuses to send requests whose credential is
//     already expired; the inbound hook forces logout on 401 and surfaces
//     403 to the caller without redirecting.
//
// Storage:
//   - Store is a minimal durable key/value abstraction with whole-value
//     replacement writes. MemoryStore, FileStore (fsnotify-watched, shared
//     across processes), and BunStore (SQLite via bun) are provided. Stores
//     that implement ChangeNotifier feed external changes back into the
//     state machine.
package session

// Package poll provides the two loop primitives the CI workflows are built
// on: a bounded status poller and a retryable action.
//
// [Poll] queries a status source at a fixed interval until a caller-supplied
// classifier reports a terminal verdict or the overall deadline passes.
// Transient fetch errors are swallowed so that a briefly unreachable service
// does not end the loop. [Retry] runs an idempotent action up to a fixed
// number of attempts, letting the caller whitelist errors that mean the
// action was already applied remotely.
//
// Neither primitive keeps state between calls; each call owns its loop.
package poll

// Package record defines what a replay emits and where it goes.
//
// Records are built from decoded messages by pure functions. Records that
// describe a tracked ticker carry the top of its book at the moment of
// emission, taken after the message was applied. A Sink consumes them; the
// replay flushes its sink on every exit path.
package record

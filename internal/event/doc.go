// Package event implements the observer surfaces the relay exposes.
//
// An Emitter holds an explicit list of registered subscribers; Subscribe
// returns a capability Handle that detaches the subscriber when cancelled.
// Emission is non-blocking: a slow subscriber loses events instead of
// stalling the emitting goroutine.
package event

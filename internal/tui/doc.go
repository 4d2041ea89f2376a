// Package tui shows a live view of a lifecycle run using Bubble Tea.
//
// The runner executes in its own goroutine and reports through a Reporter
// that forwards every event to the program as a message. The model only
// receives messages; it never calls back into the runner except to cancel
// the run when the user quits early.
//
// Log entries emitted through pkg/logging while the TUI owns the terminal
// are delivered on the logging channel and shown below the case list.
package tui

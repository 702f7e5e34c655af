// Package clock abstracts wall time and timers so schedulers can be driven
// deterministically in tests.
//
// Production code uses Real, which delegates to the time package. Tests use
// Fake, whose timers only fire when Advance moves the clock past their
// deadline. Callbacks run synchronously on the goroutine calling Advance, in
// deadline order.
package clock

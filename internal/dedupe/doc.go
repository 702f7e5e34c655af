// Package dedupe suppresses repeated chat lines that the remote service
// re-delivers within a short window, so each line is logged and counted once.
package dedupe

// Package dedupe remembers webhook responses for a time window so that a
// redelivered webhook gets the original reply instead of running the turn
// a second time.
package dedupe

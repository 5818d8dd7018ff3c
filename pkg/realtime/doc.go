// Package realtime applies best-effort real-time process settings for the
// control loop: locked memory and a raised scheduling priority. Failures
// are logged and tolerated; the controller still runs, just with weaker
// timing guarantees.
package realtime

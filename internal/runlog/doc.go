// Package runlog archives finished experiment runs in SQLite.
//
// A run is saved once, after the executor returns, together with its
// execution records and sensor timeline. The executor never reads the
// archive; it exists for the CLI's runs command and the control API.
package runlog

// Package api implements the HTTP control API and WebSocket event stream
// for FlowLab Core.
//
// This package provides:
//   - Health and metrics endpoints
//   - REST endpoints to inspect, pause, resume and cancel the running experiment
//   - Read access to the run archive
//   - A WebSocket hub that relays execution records, datapoints and status
//     changes of the attached experiment
//   - Middleware stack (request ID, logging, recovery, body size limit)
//
// # Architecture
//
// The server holds at most one attached experiment. Control requests only
// flip the experiment's flags; the executor goroutines react to them. The
// hub is bound to the experiment as an observer, so events reach clients
// as soon as the executor appends them.
//
// The server works without a run archive; the /runs endpoints then answer
// 503.
package api

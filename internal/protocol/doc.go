// Package protocol loads and compiles experiment protocols.
//
// A protocol file names, per device, the parameters to apply and the
// offset (seconds from the start of the run) at which to apply them:
//
//	name: hydrogenation
//	components:
//	  pumpA:
//	    - time: 0
//	      params: {rate: 1.0}
//	    - time: 10
//	      params: {rate: 0}
//	  od:
//	    - time: 0
//	      params: {rate: 5}
//
// Compile resolves device names against a registry and checks every
// step before anything runs: offsets must be non-negative and
// non-decreasing per device, and parameters must pass the device's own
// validation. The executor relies on this ordering and never re-sorts.
package protocol

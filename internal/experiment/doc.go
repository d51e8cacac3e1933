// Package experiment holds the runtime context of one protocol run.
//
// An Experiment owns the run clock (start time, accumulated pause time),
// the control flags a UI or controller flips (paused, cancelled), the
// terminal flags the executor sets, and the append-only outputs: the
// execution log and the per-device datapoint timeline.
//
// All state is guarded by a mutex. Every flag change closes the channel
// returned by Changed, so waiters block on a select instead of polling:
//
//	for exp.Paused() {
//	    select {
//	    case <-exp.Changed():
//	    case <-ctx.Done():
//	        return ctx.Err()
//	    }
//	}
//
// Observers bound with BindObserver see every record and datapoint as it
// is appended, and are released by the executor at the end of the run.
package experiment

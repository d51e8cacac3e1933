// Package execution runs compiled protocols against live or simulated
// devices.
//
// An Executor starts one task per component schedule, one monitor per
// observable device, and three supervisors (cancellation watcher, pause
// controller, end signal) inside a single errgroup. The first task to
// fail cancels the rest. Whatever the outcome, every device is put back
// to its base state before Run returns.
//
// Timing is measured on the experiment clock, which excludes time spent
// paused. Each wait is drift-corrected against that clock rather than
// chained from the previous wait, so pauses and slow commits do not
// accumulate error. In a dry run every offset is divided by the speed
// factor and no device is committed.
//
// Thread Safety:
//   - Each component is wrapped in a guard. Apply and commit sequences,
//     pause snapshots and restores all hold it.
//   - The pause snapshot map is owned by the pause controller goroutine.
package execution

// Package protocol implements C3: parsing one double-newline-framed
// control message into a recognized command and dispatching it against
// the task registry and worker engine — ADD/PAUSE/RESUME/DELETE/
// KEEPALIVE/BYE — plus the report-queue drain and dropped-task reap that
// follow every command per §4.7.
//
// Dispatch never blocks beyond what registry/worker calls already do (a
// DELETE joins the deleted task's worker goroutine, and an ADD whose
// registry insert is rejected joins the worker it just spawned);
// everything else is a map lookup and a condition-variable signal.
package protocol

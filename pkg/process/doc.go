// Package process spawns child processes that are torn down with their parent.
//
// Every process started by a Runner lives in its own process group (a new
// console process group on Windows). Two watchers accompany each spawn: an
// exit watcher that reaps the child and closes its output streams, and a
// signal watcher registered with a signals.Router that terminates the child
// when the parent receives SIGINT or SIGTERM before the child has exited.
//
// Termination is graceful first. On POSIX systems SIGTERM is sent to the
// whole process group; on Windows a CTRL_BREAK event is sent while the router
// is shielded so the parent does not react to its own event. If the child is
// still alive when the caller's context expires it is killed.
//
// ReadStream consumes a child's output line by line. Progress-bar lines
// (lines containing both "|" and "%") are reported once per distinct value
// and are excluded from the collected text.
package process

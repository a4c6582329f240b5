// Package browser supervises the shared Playwright browser used for rendering.
//
// A single Manager owns the Playwright driver and at most one live browser
// Session. Callers never hold either directly: they ask for a page scope with
// GetPage and the page is closed before GetPage returns.
//
// # Session Lifecycle
//
// Sessions move through these states:
//
//  1. Uninitialized: no session has been requested yet
//  2. Starting: a startup holds the manager lock
//  3. Connected: GetSession returns the live session as is
//  4. Disconnected: the browser went away and the next GetSession starts a new one
//  5. Stopped: Shutdown released the browser and the driver
//
// # Startup
//
// Startup picks the first configured mode:
//
//   - connect_over_cdp (chromium only): attach over the DevTools protocol
//   - connect: connect to a Playwright browser server
//   - otherwise: launch a local browser
//
// When a local launch fails because the browser executable is missing, the
// manager runs the installer and relaunches, up to max_install_cycles times.
// An explicit browser_executable_path that fails to launch is a configuration
// error and is never retried. In CI mode nothing is installed.
//
// # Shutdown
//
// Shutdown is idempotent. Locally launched browsers are always closed; remote
// and CDP browsers only when shutdown_browser_on_exit is set. Every step runs
// even if an earlier one fails.
package browser

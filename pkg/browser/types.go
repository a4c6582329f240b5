package browser

import (
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/htmlrender/pkg/config"
)

// DefaultDeviceScaleFactor is used when PageOptions leaves the scale unset.
const DefaultDeviceScaleFactor = 2

// LaunchMode is how a Session was obtained.
type LaunchMode string

const (
	ModeLaunch  LaunchMode = "launch"
	ModeCDP     LaunchMode = "cdp"
	ModeConnect LaunchMode = "connect"
)

// Remote reports whether the browser process is owned by someone else.
func (m LaunchMode) Remote() bool {
	return m == ModeCDP || m == ModeConnect
}

// State is the manager's lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateStarting
	StateConnected
	StateDisconnected
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStarting:
		return "starting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Session is the live browser owned by a Manager.
type Session struct {
	// Browser is the Playwright browser handle
	Browser playwright.Browser

	// Mode records how the browser was obtained
	Mode LaunchMode

	// Engine is the browser engine in use
	Engine config.Engine

	// StartedAt is when the session was created
	StartedAt time.Time
}

// IsConnected reports whether the browser is still reachable.
func (s *Session) IsConnected() bool {
	return s != nil && s.Browser != nil && s.Browser.IsConnected()
}

// PageOptions configures a page opened by GetPage.
type PageOptions struct {
	// DeviceScaleFactor defaults to DefaultDeviceScaleFactor
	DeviceScaleFactor float64

	// Viewport overrides the default viewport when set
	Viewport *playwright.Size

	// Extra is passed to Browser.NewPage. Fields set above take precedence
	// unless Extra sets them explicitly.
	Extra playwright.BrowserNewPageOptions
}

func (o PageOptions) newPageOptions() playwright.BrowserNewPageOptions {
	po := o.Extra
	if po.DeviceScaleFactor == nil {
		scale := o.DeviceScaleFactor
		if scale <= 0 {
			scale = DefaultDeviceScaleFactor
		}
		po.DeviceScaleFactor = playwright.Float(scale)
	}
	if po.Viewport == nil && o.Viewport != nil {
		po.Viewport = o.Viewport
	}
	return po
}

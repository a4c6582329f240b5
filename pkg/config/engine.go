package config

import (
	"fmt"
	"slices"
	"strings"
)

// Engine names a Playwright browser engine.
type Engine string

const (
	Chromium Engine = "chromium"
	Firefox  Engine = "firefox"
	WebKit   Engine = "webkit"
)

// Engines lists the supported engines.
var Engines = []Engine{Chromium, Firefox, WebKit}

// Channels lists the browser channels Playwright can launch.
var Channels = []string{
	"chromium",
	"chrome",
	"chrome-beta",
	"chrome-dev",
	"chrome-canary",
	"msedge",
	"msedge-beta",
	"msedge-dev",
	"msedge-canary",
	"firefox",
	"webkit",
}

// ParseEngine validates and normalizes an engine name.
func ParseEngine(s string) (Engine, error) {
	e := Engine(strings.ToLower(strings.TrimSpace(s)))
	if !e.Valid() {
		return "", fmt.Errorf("invalid browser engine %q, must be one of %v", s, Engines)
	}
	return e, nil
}

// Valid reports whether e is a supported engine.
func (e Engine) Valid() bool {
	return slices.Contains(Engines, e)
}

func (e Engine) String() string {
	return string(e)
}

// ValidChannel reports whether ch is a known browser channel.
func ValidChannel(ch string) bool {
	return slices.Contains(Channels, ch)
}

package browser

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrExecutablePath means an explicit browser_executable_path failed to launch.
	ErrExecutablePath = errors.New("browser executable path is invalid")

	// ErrEnvironmentNotReady means the browser is missing and could not be installed.
	ErrEnvironmentNotReady = errors.New("browser environment is not set up")

	// ErrDriverNotInitialized means a remote endpoint is configured but the
	// Playwright driver is not running.
	ErrDriverNotInitialized = errors.New("playwright driver is not initialized")

	errInstallFailed = errors.New("browser installation failed")
)

// StartupError is a fatal startup failure. It unwraps to both its kind
// (one of the sentinels above) and the underlying cause.
type StartupError struct {
	Kind    error
	Message string
	Err     error
}

func (e *StartupError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *StartupError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// ConfigError reports an invalid browser setting.
type ConfigError struct {
	Field string
	Value string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func environmentNotReady(message string, err error) *StartupError {
	return &StartupError{
		Kind:    ErrEnvironmentNotReady,
		Message: message + "; install the browser with `htmlrender install` or set browser_executable_path",
		Err:     err,
	}
}

// Messages Playwright reports when a browser binary has not been downloaded.
var missingExecutableMarkers = []string{
	"Executable doesn't exist",
	"Looks like Playwright was just installed or updated",
	"please run the following command to download new browsers",
}

// IsMissingExecutable reports whether a launch error means the browser
// binary is not installed.
func IsMissingExecutable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range missingExecutableMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// isDriverMissing reports whether playwright.Run failed because the driver
// has not been downloaded.
func isDriverMissing(err error) bool {
	return err != nil && strings.Contains(err.Error(), "please install the driver")
}

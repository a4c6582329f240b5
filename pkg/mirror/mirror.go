// Package mirror picks the fastest reachable browser download host.
//
// Each candidate is probed with a plain TCP connect to the host and port of
// its URL. Unreachable candidates are dropped; among the rest the lowest
// latency wins and ties go to the higher priority.
package mirror

import (
	"fmt"
	"net"
	"net/url"

	"golang.org/x/net/idna"
)

// CustomPriority is the priority of a user-configured download host.
const CustomPriority = 10

// Mirror is a candidate browser download host.
type Mirror struct {
	Name     string
	URL      string
	Priority int
}

func (m Mirror) String() string {
	return fmt.Sprintf("%s (%s)", m.Name, m.URL)
}

// Builtin lists the mirrors that are always considered.
var Builtin = []Mirror{
	{Name: "Default", URL: "https://playwright.azureedge.net", Priority: 1},
	{Name: "Taobao", URL: "https://registry.npmmirror.com/-/binary/playwright", Priority: 2},
}

// Candidates returns the built-in mirrors plus customHost, when set, as a
// "Custom" mirror that outranks them on equal latency.
func Candidates(customHost string) []Mirror {
	out := make([]Mirror, 0, len(Builtin)+1)
	out = append(out, Builtin...)
	if customHost != "" {
		out = append(out, Mirror{Name: "Custom", URL: customHost, Priority: CustomPriority})
	}
	return out
}

// Address returns the host:port to probe. Internationalized host names are
// converted to ASCII. The port defaults to 443 for https and 80 otherwise.
func (m Mirror) Address() (string, error) {
	u, err := url.Parse(m.URL)
	if err != nil {
		return "", fmt.Errorf("invalid mirror URL %q: %w", m.URL, err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("mirror URL %q has no host", m.URL)
	}

	if net.ParseIP(host) == nil {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return "", fmt.Errorf("invalid mirror host %q: %w", host, err)
		}
		host = ascii
	}

	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(host, port), nil
}

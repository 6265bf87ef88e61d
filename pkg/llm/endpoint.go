package llm

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// completionsPath is what users paste when they copy the full request URL;
// the client wants the base it is appended to.
const completionsPath = "/chat/completions"

// ErrCleartextKey is returned for plain HTTP endpoints on public hosts,
// which would receive the API key unencrypted.
var ErrCleartextKey = errors.New("endpoint would receive the API key over plain http")

// Endpoint is a resolved completion endpoint.
type Endpoint struct {
	// BaseURL is the normalized URL handed to the client.
	BaseURL string
	// Local is set for loopback, private network and .local hosts.
	Local bool
	// Secure is set for https.
	Secure bool
}

// ResolveEndpoint checks raw as a destination for the API key and trims a
// trailing /chat/completions. The key is only sent over https, or over
// http to a host on this machine or the local network. IP literals are
// classified without DNS lookups; hostnames only by name.
func ResolveEndpoint(raw string) (*Endpoint, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, errors.Wrap(err, "invalid endpoint URL")
	}

	ep := &Endpoint{}
	switch u.Scheme {
	case "https":
		ep.Secure = true
	case "http":
	default:
		return nil, errors.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	if u.User != nil {
		return nil, errors.New("endpoint must not embed credentials, use the api-key setting")
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, errors.New("endpoint has no host")
	}
	switch {
	case host == "localhost", strings.HasSuffix(host, ".localhost"), strings.HasSuffix(host, ".local"):
		ep.Local = true
	default:
		if addr, err := netip.ParseAddr(host); err == nil {
			addr = addr.Unmap()
			if addr.IsUnspecified() || addr.IsMulticast() {
				return nil, errors.Errorf("endpoint address %q not allowed", host)
			}
			ep.Local = addr.Zone() != "" || addr.IsLoopback() || addr.IsPrivate() ||
				addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast()
		}
	}

	if !ep.Secure && !ep.Local {
		return nil, errors.Wrapf(ErrCleartextKey, "host %s", host)
	}

	u.Path = strings.TrimSuffix(strings.TrimRight(u.Path, "/"), completionsPath)
	u.RawPath = ""
	u.Fragment = ""
	ep.BaseURL = u.String()
	return ep, nil
}

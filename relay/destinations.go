package relay

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidDestinations is returned when a destination list is empty or holds a malformed URL.
var ErrInvalidDestinations = errors.New("invalid destinations")

// Destinations is a validated, ordered list of streaming endpoints. The zero value is empty and
// rejected by Supervisor.Start. Once built it is never mutated.
type Destinations struct {
	urls []*url.URL
}

var allowedSchemes = map[string]bool{"rtmp": true, "rtmps": true}

// ParseDestinations validates raw endpoint URLs. Surrounding whitespace is trimmed; anything else
// that the tee muxer cannot carry verbatim ('|', '[', ']', inner whitespace) is rejected.
func ParseDestinations(raw []string) (Destinations, error) {
	if len(raw) == 0 {
		return Destinations{}, fmt.Errorf("%w: no destinations provided", ErrInvalidDestinations)
	}
	out := make([]*url.URL, 0, len(raw))
	for i, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			return Destinations{}, fmt.Errorf("%w: destination %d is empty", ErrInvalidDestinations, i)
		}
		if strings.ContainsAny(s, "|[] \t\r\n") {
			return Destinations{}, fmt.Errorf("%w: destination %d contains reserved characters", ErrInvalidDestinations, i)
		}
		u, err := url.Parse(s)
		if err != nil {
			return Destinations{}, fmt.Errorf("%w: destination %d: %v", ErrInvalidDestinations, i, err)
		}
		if !allowedSchemes[strings.ToLower(u.Scheme)] {
			return Destinations{}, fmt.Errorf("%w: destination %d: unsupported scheme %q", ErrInvalidDestinations, i, u.Scheme)
		}
		if u.Host == "" {
			return Destinations{}, fmt.Errorf("%w: destination %d: missing host", ErrInvalidDestinations, i)
		}
		out = append(out, u)
	}
	return Destinations{urls: out}, nil
}

// Len returns the number of endpoints.
func (d Destinations) Len() int { return len(d.urls) }

// Strings returns a copy of the endpoints in their original order.
func (d Destinations) Strings() []string {
	out := make([]string, len(d.urls))
	for i, u := range d.urls {
		out[i] = u.String()
	}
	return out
}

// Redacted returns scheme://host/app for each endpoint, dropping the stream key so it can be logged.
func (d Destinations) Redacted() []string {
	out := make([]string, len(d.urls))
	for i, u := range d.urls {
		path := u.Path
		if idx := strings.LastIndex(strings.TrimSuffix(path, "/"), "/"); idx > 0 {
			path = path[:idx] + "/***"
		} else if path != "" {
			path = "/***"
		}
		out[i] = u.Scheme + "://" + u.Host + path
	}
	return out
}

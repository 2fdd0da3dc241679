// Package dsn parses Data Source Names of the form
// http(s)://<public_key>@<host>/<project_id> into the store endpoint URL.
package dsn

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const protocolVersion = "7"

// ErrInvalidDSN is wrapped by every Parse failure.
var ErrInvalidDSN = errors.New("invalid dsn")

// DSN is a parsed Data Source Name.
type DSN struct {
	Scheme    string
	PublicKey string
	Host      string // host[:port]
	ProjectID string
}

// Parse validates raw and splits it into its parts.
func Parse(raw string) (*DSN, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidDSN, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w %q: scheme must be http or https", ErrInvalidDSN, raw)
	}
	if u.User == nil || u.User.Username() == "" {
		return nil, fmt.Errorf("%w %q: missing public key", ErrInvalidDSN, raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w %q: missing host", ErrInvalidDSN, raw)
	}

	project := strings.Trim(u.Path, "/")
	if i := strings.IndexByte(project, '/'); i >= 0 {
		project = project[:i]
	}
	if _, err := strconv.ParseUint(project, 10, 64); err != nil {
		return nil, fmt.Errorf("%w %q: project id must be numeric", ErrInvalidDSN, raw)
	}

	return &DSN{
		Scheme:    u.Scheme,
		PublicKey: u.User.Username(),
		Host:      u.Host,
		ProjectID: project,
	}, nil
}

// StoreURL returns the event ingestion endpoint, with the key and protocol
// version carried as query parameters.
func (d *DSN) StoreURL() string {
	q := url.Values{}
	q.Set("sentry_key", d.PublicKey)
	q.Set("sentry_version", protocolVersion)
	u := url.URL{
		Scheme:   d.Scheme,
		Host:     d.Host,
		Path:     "/api/" + d.ProjectID + "/store/",
		RawQuery: q.Encode(),
	}
	return u.String()
}

// AuthHeader returns the X-Sentry-Auth header value for client.
func (d *DSN) AuthHeader(client string) string {
	return fmt.Sprintf("Sentry sentry_version=%s, sentry_client=%s, sentry_key=%s",
		protocolVersion, client, d.PublicKey)
}

// String renders the DSN back in its canonical form.
func (d *DSN) String() string {
	return fmt.Sprintf("%s://%s@%s/%s", d.Scheme, d.PublicKey, d.Host, d.ProjectID)
}

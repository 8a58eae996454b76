package interfaces

import (
	"fmt"
	"net/url"
	"strconv"
)

// StoreLocation represents the URI of a host store.
//
//	[scheme]://[auth@]host[:port][/path][?params]
type StoreLocation struct {
	Raw    string     // Original URI
	Scheme string     // Store kind
	Host   string     // Hostname or bucket
	Path   string     // Resource path
	Query  url.Values // Query parameters
	Auth   *url.Userinfo
}

// NewStoreLocation parses a store URI and validates its scheme.
func NewStoreLocation(uri string) (StoreLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StoreLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	switch parsed.Scheme {
	case "memory", "sqlite", "vault", "file", "s3", "none":
		// Valid scheme
	default:
		return StoreLocation{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	return StoreLocation{
		Raw:    uri,
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		Auth:   parsed.User,
	}, nil
}

// String returns the original URI string.
func (loc StoreLocation) String() string {
	return loc.Raw
}

// GetParam returns a query parameter value.
func (loc StoreLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

// GetParamBool returns a boolean query parameter value.
func (loc StoreLocation) GetParamBool(name string) bool {
	value := loc.Query.Get(name)
	return value == "true" || value == "1" || value == "yes"
}

// GetParamInt64 returns an integer query parameter, or def when it is absent.
func (loc StoreLocation) GetParamInt64(name string, def int64) (int64, error) {
	value := loc.Query.Get(name)
	if value == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parameter %s: %v", ErrInvalidLocationURI, name, err)
	}
	return n, nil
}

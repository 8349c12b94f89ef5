// Package remote implements clients for the cloud store that holds one
// dashboard record per user id. Clients are chosen by the URL scheme of the
// credentials through a factory registry.
package remote

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

// Defaults for Options.
const (
	DefaultTable   = "user_data"
	DefaultTimeout = 10 * time.Second
)

// Options tune a client. Zero values take the defaults.
type Options struct {
	Table      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.Table) == "" {
		o.Table = DefaultTable
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: o.Timeout}
	}
	return o
}

// Factory builds an uninitialized client for a scheme.
type Factory func(opts Options) types.RemoteStore

var factories = struct {
	mu sync.RWMutex
	m  map[string]Factory
}{m: map[string]Factory{}}

// RegisterFactory makes Open use f for URLs with the given scheme.
func RegisterFactory(scheme string, f Factory) {
	scheme = normalizeScheme(scheme)
	if scheme == "" || f == nil {
		return
	}
	factories.mu.Lock()
	defer factories.mu.Unlock()
	factories.m[scheme] = f
}

func lookupFactory(scheme string) (Factory, bool) {
	factories.mu.RLock()
	defer factories.mu.RUnlock()
	f, ok := factories.m[normalizeScheme(scheme)]
	return f, ok
}

func init() {
	RegisterFactory("http", func(o Options) types.RemoteStore { return NewRESTClient(o) })
	RegisterFactory("https", func(o Options) types.RemoteStore { return NewRESTClient(o) })
	RegisterFactory("postgres", func(o Options) types.RemoteStore { return NewPostgresClient(o) })
	RegisterFactory("postgresql", func(o Options) types.RemoteStore { return NewPostgresClient(o) })
	RegisterFactory("memory", func(o Options) types.RemoteStore { return NewMemoryClient() })
}

// New returns an uninitialized client for the scheme of rawURL.
func New(rawURL string, opts Options) (types.RemoteStore, error) {
	scheme, err := SchemeOf(rawURL)
	if err != nil {
		return nil, err
	}
	f, ok := lookupFactory(scheme)
	if !ok {
		return nil, fmt.Errorf("%w: no remote client for scheme %q", types.ErrRemoteNotConfigured, scheme)
	}
	return f(opts.withDefaults()), nil
}

// SchemeOf returns the lower-cased scheme of rawURL.
func SchemeOf(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrRemoteNotConfigured, err)
	}
	if u.Scheme == "" {
		return "", fmt.Errorf("%w: url %q has no scheme", types.ErrRemoteNotConfigured, rawURL)
	}
	return normalizeScheme(u.Scheme), nil
}

// Opener returns a function that builds clients with opts. The data
// manager takes one of these so tests can substitute fakes.
func Opener(opts Options) func(creds types.RemoteCredentials) (types.RemoteStore, error) {
	return func(creds types.RemoteCredentials) (types.RemoteStore, error) {
		return New(creds.URL, opts)
	}
}

// ValidateCredentials checks that creds name a URL and a user.
func ValidateCredentials(creds types.RemoteCredentials) error {
	if strings.TrimSpace(creds.URL) == "" {
		return fmt.Errorf("%w: url is required", types.ErrRemoteNotConfigured)
	}
	if strings.TrimSpace(creds.UserID) == "" {
		return fmt.Errorf("%w: user id is required", types.ErrRemoteNotConfigured)
	}
	return nil
}

func normalizeScheme(scheme string) string {
	return strings.ToLower(strings.TrimSpace(scheme))
}

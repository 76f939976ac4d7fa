package pair

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/studyhall/pairhub/internal/config"
)

const (
	defaultServerURL = "http://localhost:5000"
	defaultAPIPath   = "/api/pair-programming"
	defaultWSPath    = "/api/ws"

	// StorageKey is the key under which the active session id is persisted.
	StorageKey = "pair_programming_session_id"
)

// Options configures a Client. Zero values fall back to the defaults below.
type Options struct {
	ServerURL string
	// Transports lists transports in order of preference. Only "websocket"
	// is implemented.
	Transports []string

	// NoReconnect disables automatic reconnection after a drop.
	NoReconnect       bool
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration
	ConnectTimeout    time.Duration
	JoinTimeout       time.Duration

	Username string
	UserID   *int64

	Store      Store
	HTTPClient *http.Client
	Logger     *log.Logger
}

// DefaultOptions mirrors the production client settings.
func DefaultOptions() Options {
	return Options{
		ServerURL:         defaultServerURL,
		Transports:        []string{"websocket"},
		ReconnectAttempts: 10,
		ReconnectDelay:    time.Second,
		ReconnectDelayMax: 5 * time.Second,
		ConnectTimeout:    20 * time.Second,
		JoinTimeout:       10 * time.Second,
		Username:          "Anonymous",
	}
}

// OptionsFromConfig builds Options from the environment-backed config.
func OptionsFromConfig(cfg config.ClientConfig) (Options, error) {
	opts := DefaultOptions()
	opts.ServerURL = cfg.ServerURL
	opts.Transports = cfg.Transports
	opts.NoReconnect = !cfg.Reconnect
	opts.ReconnectAttempts = cfg.ReconnectAttempts
	opts.ReconnectDelay = cfg.ReconnectDelay
	opts.ReconnectDelayMax = cfg.ReconnectDelayMax
	opts.ConnectTimeout = cfg.ConnectTimeout
	opts.JoinTimeout = cfg.JoinTimeout

	if cfg.StorePath != "" {
		store, err := NewFileStore(cfg.StorePath)
		if err != nil {
			return Options{}, err
		}
		opts.Store = store
	}
	return opts, nil
}

func (o Options) withDefaults() (Options, error) {
	def := DefaultOptions()

	if strings.TrimSpace(o.ServerURL) == "" {
		o.ServerURL = def.ServerURL
	}
	if len(o.Transports) == 0 {
		o.Transports = def.Transports
	}
	for _, t := range o.Transports {
		if t != "websocket" {
			return Options{}, fmt.Errorf("unsupported transport %q", t)
		}
	}
	if o.ReconnectAttempts <= 0 {
		o.ReconnectAttempts = def.ReconnectAttempts
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = def.ReconnectDelay
	}
	if o.ReconnectDelayMax < o.ReconnectDelay {
		o.ReconnectDelayMax = max(def.ReconnectDelayMax, o.ReconnectDelay)
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = def.ConnectTimeout
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = def.JoinTimeout
	}
	if strings.TrimSpace(o.Username) == "" {
		o.Username = def.Username
	}
	if o.Store == nil {
		o.Store = NewMemoryStore()
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: o.ConnectTimeout}
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return o, nil
}

// endpoints derives the REST base and websocket URL from ServerURL.
func (o Options) endpoints() (apiBase, wsURL string, err error) {
	u, err := url.Parse(strings.TrimRight(o.ServerURL, "/"))
	if err != nil {
		return "", "", fmt.Errorf("invalid server url %q: %w", o.ServerURL, err)
	}

	ws := *u
	switch u.Scheme {
	case "http":
		ws.Scheme = "ws"
	case "https":
		ws.Scheme = "wss"
	default:
		return "", "", fmt.Errorf("invalid server url %q: scheme must be http or https", o.ServerURL)
	}

	api := *u
	api.Path = u.Path + defaultAPIPath
	ws.Path = u.Path + defaultWSPath
	return api.String(), ws.String(), nil
}

// backoff returns the delay before reconnect attempt n (1-based): the base
// delay doubled per attempt, capped at ReconnectDelayMax.
func (o Options) backoff(n int) time.Duration {
	d := o.ReconnectDelay
	for i := 1; i < n; i++ {
		d *= 2
		if d >= o.ReconnectDelayMax {
			return o.ReconnectDelayMax
		}
	}
	return min(d, o.ReconnectDelayMax)
}

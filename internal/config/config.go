package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates every setting of the relay and its client.
type Config struct {
	Server  ServerConfig
	Session SessionConfig
	Client  ClientConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	client, err := loadClientConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Session: session, Client: client}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

func loadServerConfig() (ServerConfig, error) {
	origins := parseListEnv("PAIR_ALLOWED_ORIGINS")

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "5000"
	}

	if strings.Contains(port, ":") {
		// accept ":5000" or "127.0.0.1:5000" verbatim
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// SessionConfig bounds session lifetime and chat history on the relay.
type SessionConfig struct {
	TTL            time.Duration
	MaxMessages    int
	ReplayMessages int
	SweepInterval  time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	ttlHours, err := parseOptionalIntEnv("PAIR_SESSION_TTL_HOURS")
	if err != nil {
		return SessionConfig{}, err
	}
	ttl := 24 * time.Hour
	if ttlHours != nil {
		if *ttlHours < 1 {
			return SessionConfig{}, fmt.Errorf("invalid PAIR_SESSION_TTL_HOURS value %d: must be positive", *ttlHours)
		}
		ttl = time.Duration(*ttlHours) * time.Hour
	}

	maxMessages, err := parseIntEnv("PAIR_MAX_MESSAGES", 100)
	if err != nil {
		return SessionConfig{}, err
	}
	replay, err := parseIntEnv("PAIR_REPLAY_MESSAGES", 50)
	if err != nil {
		return SessionConfig{}, err
	}
	if replay > maxMessages {
		replay = maxMessages
	}

	sweep, err := parseDurationEnv("PAIR_SWEEP_INTERVAL", 5*time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}

	return SessionConfig{
		TTL:            ttl,
		MaxMessages:    maxMessages,
		ReplayMessages: replay,
		SweepInterval:  sweep,
	}, nil
}

// ClientConfig describes how the relay client reaches the server.
type ClientConfig struct {
	ServerURL         string
	Transports        []string
	Reconnect         bool
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration
	ConnectTimeout    time.Duration
	JoinTimeout       time.Duration
	StorePath         string
}

func loadClientConfig() (ClientConfig, error) {
	reconnect, err := parseBoolEnv("PAIR_RECONNECT", true)
	if err != nil {
		return ClientConfig{}, err
	}
	attempts, err := parseIntEnv("PAIR_RECONNECT_ATTEMPTS", 10)
	if err != nil {
		return ClientConfig{}, err
	}
	delay, err := parseDurationEnv("PAIR_RECONNECT_DELAY", time.Second)
	if err != nil {
		return ClientConfig{}, err
	}
	delayMax, err := parseDurationEnv("PAIR_RECONNECT_DELAY_MAX", 5*time.Second)
	if err != nil {
		return ClientConfig{}, err
	}
	connectTimeout, err := parseDurationEnv("PAIR_CONNECT_TIMEOUT", 20*time.Second)
	if err != nil {
		return ClientConfig{}, err
	}
	joinTimeout, err := parseDurationEnv("PAIR_JOIN_TIMEOUT", 10*time.Second)
	if err != nil {
		return ClientConfig{}, err
	}

	transports := parseListEnv("PAIR_TRANSPORTS")
	if len(transports) == 0 {
		transports = []string{"websocket"}
	}

	storePath := strings.TrimSpace(os.Getenv("PAIR_STORE_PATH"))
	if storePath == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			storePath = dir + string(os.PathSeparator) + "pairhub" + string(os.PathSeparator) + "state.yaml"
		}
	}

	return ClientConfig{
		ServerURL:         getEnvOrDefault("PAIR_SERVER_URL", "http://localhost:5000"),
		Transports:        transports,
		Reconnect:         reconnect,
		ReconnectAttempts: attempts,
		ReconnectDelay:    delay,
		ReconnectDelayMax: delayMax,
		ConnectTimeout:    connectTimeout,
		JoinTimeout:       joinTimeout,
		StorePath:         storePath,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseListEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}

	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	if *val < 0 {
		return 0, fmt.Errorf("invalid %s value %d: must not be negative", key, *val)
	}
	return *val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

// parseDurationEnv accepts Go durations ("1.5s") or bare milliseconds.
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

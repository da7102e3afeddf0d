package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/aquamarinepk/aqm"
)

// Cache backends for the local response cache.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

// Options is the terminal configuration read once at startup.
type Options struct {
	TerminalID       string
	RemoteURL        string
	EventsURL        string
	CacheBackend     string
	SQLitePath       string
	NATSURL          string
	NATSTopic        string
	CallListInterval time.Duration
	TimeSyncInterval time.Duration
}

func LoadOptions(config *aqm.Config) (Options, error) {
	o := Options{
		TerminalID:   config.GetStringOrDef("terminal.id", "terminal-1"),
		RemoteURL:    strings.TrimRight(config.GetStringOrDef("remote.url", "http://192.168.4.1"), "/"),
		CacheBackend: strings.ToLower(config.GetStringOrDef("cache.backend", BackendSQLite)),
		SQLitePath:   config.GetStringOrDef("cache.sqlite.path", "kds-cache.db"),
		NATSTopic:    config.GetStringOrDef("nats.topic", ""),
	}
	o.NATSURL, _ = config.GetString("nats.url")

	o.EventsURL, _ = config.GetString("remote.ws.url")
	if o.EventsURL == "" {
		o.EventsURL = websocketURL(o.RemoteURL)
	}

	switch o.CacheBackend {
	case BackendMemory, BackendSQLite, BackendMongo:
	default:
		return o, fmt.Errorf("unknown cache backend %q", o.CacheBackend)
	}

	var err error
	if o.CallListInterval, err = duration(config, "sync.calllist.interval", "10s"); err != nil {
		return o, err
	}
	if o.TimeSyncInterval, err = duration(config, "sync.timesync.interval", "5m"); err != nil {
		return o, err
	}
	return o, nil
}

func duration(config *aqm.Config, key, def string) (time.Duration, error) {
	raw := config.GetStringOrDef(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, raw)
	}
	return d, nil
}

// websocketURL derives the push endpoint from the REST base URL.
func websocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	default:
		return "ws://" + base + "/ws"
	}
}

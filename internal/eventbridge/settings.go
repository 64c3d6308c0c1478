package eventbridge

import (
	"net"
	"strconv"
	"time"

	"github.com/kingrea/pipectx/internal/config"
)

const (
	// DefaultMaxBodyBytes caps an event payload.
	DefaultMaxBodyBytes int64 = 1 << 20
	// DefaultQueueCapacity bounds scene events waiting for the dispatcher.
	DefaultQueueCapacity = defaultQueueCapacity

	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 15 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

// Settings is the server side of config.Bridge plus HTTP limits.
type Settings struct {
	Enabled       bool
	Host          string
	Port          int
	QueueCapacity int
	MaxBodyBytes  int64
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
}

// SettingsFromConfig resolves the bridge binding from cfg and the
// PIPECTX_BRIDGE_* environment.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	b, err := cfg.Bridge()
	if err != nil {
		return Settings{}, err
	}
	s := Settings{
		Enabled:       b.Enabled,
		Host:          b.Host,
		Port:          b.Port,
		QueueCapacity: b.QueueCapacity,
		MaxBodyBytes:  DefaultMaxBodyBytes,
		ReadTimeout:   defaultReadTimeout,
		WriteTimeout:  defaultWriteTimeout,
		IdleTimeout:   defaultIdleTimeout,
	}
	if s.QueueCapacity == 0 {
		s.QueueCapacity = DefaultQueueCapacity
	}
	return s, nil
}

// Address is host:port for net.Listen.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL is the base URL clients post events to.
func (s Settings) URL() string {
	return "http://" + s.Address()
}

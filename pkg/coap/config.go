package coap

import (
	"net"

	"github.com/pion/logging"

	"github.com/backkem/coap/pkg/discovery"
	"github.com/backkem/coap/pkg/exchange"
	"github.com/backkem/coap/pkg/message"
	"github.com/backkem/coap/pkg/transport"
)

// Config holds all configuration for a CoAP endpoint.
type Config struct {
	// Port is the UDP port to listen on (default: 5683).
	Port int

	// Conn is an optional pre-existing packet connection, for testing
	// over in-memory transports.
	Conn net.PacketConn

	// Params are the reliability-layer transmission parameters. The zero
	// value selects the RFC 7252 defaults.
	Params exchange.Params

	// NonConfirmableNotifications elects Non-confirmable notifications
	// for observe relations. Confirmable is the default.
	NonConfirmableNotifications bool

	// Interceptors observe every message crossing the reliability layer.
	Interceptors []exchange.Interceptor

	// RandomSource randomizes retransmission timeouts. For testing.
	RandomSource exchange.RandomSource

	// NotificationHandler processes inbound notifications when the
	// endpoint acts as an observing client. It reports whether the token
	// was recognized.
	NotificationHandler func(resp *message.Message, peer transport.PeerAddress) bool

	// Advertise enables mDNS advertisement with the given configuration.
	Advertise *discovery.Config

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// applyDefaults fills in default values for unset fields.
func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = transport.DefaultPort
	}
	if c.Params == (exchange.Params{}) {
		c.Params = exchange.DefaultParams()
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Params != (exchange.Params{}) {
		return c.Params.Validate()
	}
	return nil
}

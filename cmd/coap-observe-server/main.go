// coap-observe-server serves an observable CoAP resource over UDP.
//
// The server registers a single GET-able resource whose content changes
// on a fixed interval. Observers registered per RFC 7641 receive a
// Confirmable notification on every change. The service is advertised
// over mDNS as _coap._udp so clients can find it without configuration.
//
// Usage:
//
//	coap-observe-server [options]
//
// Options:
//
//	-config  Path to a TOML config file (optional)
//	-port    UDP port (default: 5683)
//	-path    Resource path (default: "sensors/temperature")
//	-verbose Enable debug logging
//
// Example:
//
//	coap-observe-server -port 5683 -path sensors/temperature
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/coap/pkg/coap"
	"github.com/backkem/coap/pkg/discovery"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	port := flag.Int("port", 0, "UDP port (overrides config)")
	path := flag.String("path", "", "resource path (overrides config)")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	cfg := defaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = loadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *path != "" {
		cfg.ResourcePath = *path
	}

	loggerFactory := logging.NewDefaultLoggerFactory()
	if *verbose {
		loggerFactory.DefaultLogLevel = logging.LogLevelDebug
	}

	if err := run(cfg, loggerFactory); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func run(cfg serverConfig, loggerFactory logging.LoggerFactory) error {
	epConfig := coap.Config{
		Port:                        cfg.Port,
		Params:                      cfg.Params,
		NonConfirmableNotifications: cfg.NonConfirm,
		LoggerFactory:               loggerFactory,
	}
	if cfg.Advertise {
		epConfig.Advertise = &discovery.Config{
			Instance:      cfg.Instance,
			Port:          cfg.Port,
			TXT:           append([]string{"rt=" + cfg.ResourcePath}, cfg.TXT...),
			LoggerFactory: loggerFactory,
		}
	}

	ep, err := coap.NewEndpoint(epConfig)
	if err != nil {
		return fmt.Errorf("creating endpoint: %w", err)
	}

	res := coap.NewObservedResource(reading())
	if err := ep.AddResource(cfg.ResourcePath, res); err != nil {
		return fmt.Errorf("adding resource: %w", err)
	}

	if err := ep.Start(); err != nil {
		return fmt.Errorf("starting endpoint: %w", err)
	}
	defer ep.Close()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("Serving /%s on port %d (update every %v)", cfg.ResourcePath, cfg.Port, cfg.Interval)
	for {
		select {
		case <-ticker.C:
			res.Update(reading())
		case sig := <-sigCh:
			log.Printf("Received %v, shutting down", sig)
			return nil
		}
	}
}

// reading produces a fake sensor sample.
func reading() []byte {
	return []byte(fmt.Sprintf("%.1f C @ %s", 20+float64(time.Now().Unix()%100)/10, time.Now().Format(time.RFC3339)))
}

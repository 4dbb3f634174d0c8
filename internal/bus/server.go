// Package bus runs the embedded NATS server that carries agent traffic:
// inbox deliveries, channel mirrors, task lifecycle events, and votes.
// Embedding the server keeps single-binary deployments working with no
// external broker; remote agents connect to the same URL.
package bus

import (
	"fmt"
	"net"
	"os"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

// Config controls the embedded server.
type Config struct {
	// Port to listen on. Zero picks a random free port, which tests rely
	// on to run in parallel.
	Port int
	// DataDir is the JetStream store directory. Required when JetStream
	// is enabled.
	DataDir string
	// JetStream enables persistent streams.
	JetStream bool
}

// Bus is an embedded NATS server.
type Bus struct {
	server *natsserver.Server
}

// New starts an embedded server and waits until it accepts connections.
func New(cfg Config) (*Bus, error) {
	if cfg.JetStream && cfg.DataDir == "" {
		return nil, fmt.Errorf("jetstream requires a data dir")
	}
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create nats data dir: %w", err)
		}
	}

	port := cfg.Port
	if port == 0 {
		port = natsserver.RANDOM_PORT
	}

	opts := &natsserver.Options{
		Port:      port,
		NoLog:     true,
		NoSigs:    true,
		JetStream: cfg.JetStream,
		StoreDir:  cfg.DataDir,
	}

	ns, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create nats server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("nats server not ready")
	}

	return &Bus{server: ns}, nil
}

// ClientURL returns the URL clients connect to.
func (b *Bus) ClientURL() string {
	return b.server.ClientURL()
}

// Port returns the port the server actually bound.
func (b *Bus) Port() int {
	if addr, ok := b.server.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Close shuts the server down and waits for it to stop.
func (b *Bus) Close() {
	b.server.Shutdown()
	b.server.WaitForShutdown()
}

package main

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	flags "github.com/jessevdk/go-flags"

	"github.com/rns-go/reticulum/identity"
	"github.com/rns-go/reticulum/socks"
	"github.com/rns-go/reticulum/transport"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Options is the daemon's command-line surface. Every core package takes
// explicit constructor arguments and has no notion of global configuration
// (spec.md §7 "Configuration"); only this binary reads flags.
type Options struct {
	IdentityFile string `short:"i" long:"identity" description:"path to the persisted identity file" default:"reticulum.identity"`
	Aspect       string `short:"a" long:"aspect" description:"destination aspect path this host announces under" default:"reticulum.reference"`
	Router       bool   `short:"r" long:"router" description:"participate in announce/packet forwarding"`
	BindPort     int    `short:"p" long:"bind-port" description:"UDP port this interface listens on" default:"4242"`
	BroadcastPort int   `long:"broadcast-port" description:"UDP port broadcasts are sent to" default:"4242"`
	InterfaceBPS float64 `long:"iface-bps" description:"nominal bandwidth of the UDP interface, for rate limiting" default:"1000000"`
	AnnounceEvery time.Duration `long:"announce-every" description:"interval between self-announces" default:"5m"`
	StatusAddr   string `long:"status-addr" description:"address the read-only status HTTP endpoint listens on" default:"127.0.0.1:8723"`
	SocksAddr    string `long:"socks-addr" description:"address for the SOCKS5 application gateway; empty disables it"`
}

func main() {
	var opts Options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	logger, logFile := setupLogging()
	defer func() { _ = logFile.Close() }()

	fmt.Printf("=== Reticulum reference host %s ===\n", Version)

	id := loadOrCreateIdentity(opts.IdentityFile, logger)
	fmt.Printf("Identity: %s\n", hex.EncodeToString(id.Hash()[:]))

	host, err := NewHost(id, opts.Router, logger, opts.Aspect)
	if err != nil {
		fmt.Printf("failed to start host: %v\n", err)
		os.Exit(1)
	}

	iface := registerUDPInterface(host, opts, logger)
	defer func() { _ = iface.Close() }()

	statusSrv := startStatusServer(host, opts.StatusAddr, logger)
	defer func() { _ = statusSrv.Close() }()

	if opts.SocksAddr != "" {
		socksSrv := startSocksGateway(host, iface.id, opts.SocksAddr, logger)
		defer func() { _ = socksSrv.Close() }()
	}

	runDriverLoop(host, iface, opts, logger)
}

func setupLogging() (*slog.Logger, *os.File) {
	logFile, err := os.OpenFile("reticulumd-debug.log", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log file: %v\n", err)
		os.Exit(1)
	}
	fileHandler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug})
	stdoutHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(&multiHandler{handlers: []slog.Handler{fileHandler, stdoutHandler}})
	return logger, logFile
}

func loadOrCreateIdentity(path string, logger *slog.Logger) *identity.Identity {
	if raw, err := os.ReadFile(path); err == nil && len(raw) == identity.PersistedLen {
		var persisted [identity.PersistedLen]byte
		copy(persisted[:], raw)
		id, err := identity.Load(persisted)
		if err == nil {
			return id
		}
		logger.Warn("failed to load identity file, generating a new one", "path", path, "error", err)
	}

	id, err := identity.New()
	if err != nil {
		fmt.Printf("failed to generate identity: %v\n", err)
		os.Exit(1)
	}
	persisted := id.Persist()
	if err := os.WriteFile(path, persisted[:], 0600); err != nil {
		logger.Warn("failed to persist new identity", "path", path, "error", err)
	}
	return id
}

func registerUDPInterface(host *Host, opts Options, logger *slog.Logger) *udpInterface {
	ifaceID := uuid.NewString()
	iface, err := newUDPInterface(ifaceID, opts.BindPort, opts.BroadcastPort, logger)
	if err != nil {
		fmt.Printf("failed to open UDP interface: %v\n", err)
		os.Exit(1)
	}
	mode := transport.ModePointToPoint
	if opts.Router {
		mode = transport.ModeFull
	}
	host.RegisterInterface(ifaceID, iface, opts.InterfaceBPS, 500, mode)
	fmt.Printf("Interface %s listening on UDP :%d, broadcasting to :%d\n", ifaceID, opts.BindPort, opts.BroadcastPort)
	return iface
}

func startSocksGateway(host *Host, ifaceID, addr string, logger *slog.Logger) *socks.Server {
	srv := &socks.Server{
		Addr:   addr,
		Dial:   newSocksDialer(host, ifaceID, 30*time.Second),
		Logger: logger,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Warn("socks gateway stopped", "error", err)
		}
	}()
	fmt.Printf("SOCKS5 gateway on %s (CONNECT to a hex destination hash)\n", addr)
	return srv
}

func startStatusServer(host *Host, addr string, logger *slog.Logger) *http.Server {
	srv := &http.Server{Addr: addr, Handler: newStatusRouter(host)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("status server stopped", "error", err)
		}
	}()
	fmt.Printf("Status endpoint on http://%s/status\n", addr)
	return srv
}

// driverEvent is one tagged item on the single multi-producer queue feeding
// the driver goroutine (spec.md §5): an inbound frame from a reader, or a
// periodic tick from the timer. The driver loop below handles these; the
// announce ticker and the SOCKS gateway call into the host from their own
// goroutines, and the host's mutex serializes all of them.
type driverEvent struct {
	inbound *inboundFrame
	tick    *time.Time
}

type inboundFrame struct {
	frame   []byte
	ifaceID string
	at      time.Time
}

func runDriverLoop(host *Host, iface *udpInterface, opts Options, logger *slog.Logger) {
	events := make(chan driverEvent, 256)

	go iface.readLoop(func(frame []byte, ifaceID string, now time.Time) {
		events <- driverEvent{inbound: &inboundFrame{frame: frame, ifaceID: ifaceID, at: now}}
	})

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	go func() {
		for t := range ticker.C {
			t := t
			events <- driverEvent{tick: &t}
		}
	}()

	announceTicker := time.NewTicker(opts.AnnounceEvery)
	defer announceTicker.Stop()
	go func() {
		for range announceTicker.C {
			if err := host.Announce(time.Now(), nil); err != nil {
				logger.Warn("announce failed", "error", err)
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := host.Announce(time.Now(), nil); err != nil {
		logger.Warn("initial announce failed", "error", err)
	}
	fmt.Println("Ready.")

	for {
		select {
		case ev := <-events:
			switch {
			case ev.inbound != nil:
				host.Inbound(ev.inbound.frame, ev.inbound.ifaceID, ev.inbound.at)
			case ev.tick != nil:
				host.Tick(*ev.tick)
			}
		case <-sigCh:
			fmt.Println("\nShutting down...")
			return
		}
	}
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wabridge/backend/internal/config"
	"github.com/wabridge/backend/internal/creds"
	"github.com/wabridge/backend/internal/frontend"
	"github.com/wabridge/backend/internal/session"
	"github.com/wabridge/backend/internal/sim"
	"github.com/wabridge/backend/internal/ws"
)

var (
	configPath string
	port       int
	devMode    bool
	useSim     bool
	autoPair   bool
)

var rootCmd = &cobra.Command{
	Use:   "wabridge-server",
	Short: "Messaging session gateway with a realtime observer API",
	Long: `wabridge-server maintains a single messaging-protocol session
(QR or pairing-code authentication, credential persistence, automatic
reconnection) and exposes it over HTTP and WebSocket to any number of
observers.`,
	RunE:          runServer,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "config.yaml", "Path to config file")
	rootCmd.Flags().IntVar(&port, "port", 0, "Override server port")
	rootCmd.Flags().BoolVar(&devMode, "dev", false, "Development mode (serve frontend from filesystem)")
	rootCmd.Flags().BoolVar(&useSim, "sim", false, "Use the simulated protocol client")
	rootCmd.Flags().BoolVar(&autoPair, "autopair", false, "Simulate an immediate QR scan instead of waiting for auth (implies --sim)")
}

func runServer(cmd *cobra.Command, args []string) error {
	if autoPair {
		useSim = true
	}
	if !useSim {
		// The simulated client is the only protocol driver built into
		// this binary; a real driver would be selected here.
		return errors.New("no protocol driver selected: run with --sim to use the simulated client")
	}

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	credStore := creds.NewStore(cfg.Session.Dir)
	log.Printf("Session directory: %s", cfg.Session.Dir)

	dialer := sim.NewDialer(sim.Options{
		PairDelay:       cfg.Sim.PairDelay,
		MessageInterval: cfg.Sim.MessageInterval,
		AutoPair:        autoPair,
	})
	log.Println("Using simulated protocol client")

	broadcaster := ws.NewBroadcaster(nil, 0)
	manager := session.NewManager(dialer, credStore, broadcaster, cfg.Session.ReconnectDelay)
	broadcaster.SetSource(manager)

	frontendDir := ""
	if devMode {
		exe, _ := os.Executable()
		frontendDir = filepath.Join(filepath.Dir(exe), "..", "..", "frontend")
		// If running with go run, the exe path is in a temp dir, use CWD instead
		if _, err := os.Stat(frontendDir); os.IsNotExist(err) {
			cwd, _ := os.Getwd()
			frontendDir = filepath.Join(cwd, "..", "frontend")
		}
	}

	// Embedded frontend handler: when built with -tags embed, serves from
	// binary. Otherwise falls back to serving from the filesystem.
	var embeddedHandler http.Handler
	if !devMode {
		embeddedHandler = frontend.Handler()
		if embeddedHandler == nil {
			cwd, _ := os.Getwd()
			fallback := filepath.Join(cwd, "..", "frontend")
			if _, err := os.Stat(fallback); err == nil {
				log.Printf("No embedded frontend, falling back to: %s", fallback)
				embeddedHandler = http.FileServer(http.Dir(fallback))
			}
		}
	}

	server := ws.NewServer(manager, broadcaster, frontendDir, devMode, embeddedHandler,
		cfg.Security.AllowedOrigins, cfg.Security.AuthToken)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go manager.Run(ctx)

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
		os.Exit(0)
	}()

	return ws.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

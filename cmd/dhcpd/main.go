package main

import (
	"context"
	"flag"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dhcpd-go/pkg/admin"
	"dhcpd-go/pkg/config"
	"dhcpd-go/pkg/engine"
	"dhcpd-go/pkg/ipam"
	"dhcpd-go/pkg/lease"
	"dhcpd-go/pkg/metrics"
	"dhcpd-go/pkg/server"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

func main() {
	// Setup structured logging
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	configPath := flag.String("config", "config.yaml", "Path to the configuration file")
	listen := flag.String("listen", ":67", "UDP listen address")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().Msg("Starting dhcpd-go...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading configuration")
	}
	if lvl, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil && !*debug {
		zerolog.SetGlobalLevel(lvl)
	}

	warnings, err := cfg.Validate()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	for _, w := range warnings {
		log.Warn().Msg(w)
	}

	serverIP, err := netip.ParseAddr(cfg.ServerIP)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid server_ip")
	}

	subnets, global, err := cfg.BuildSubnets()
	if err != nil {
		log.Fatal().Err(err).Msg("Error building subnets")
	}
	ipm := ipam.NewManager(subnets, global, log.Logger)
	for _, st := range ipm.Stats() {
		log.Info().Str("subnet", st.Name).Int("addresses", st.Total).Int("reserved", st.Reserved).Msg("Pool initialized")
	}

	recorder := metrics.NewNoopRecorder()
	if cfg.Metrics.Enabled {
		recorder = metrics.NewPrometheusRecorder()
		go func() {
			log.Info().Str("listen", cfg.Metrics.Listen).Msg("Metrics endpoint listening")
			if err := http.ListenAndServe(cfg.Metrics.Listen, recorder.Handler()); err != nil {
				log.Error().Err(err).Msg("Metrics endpoint failed")
			}
		}()
	}

	store := lease.NewStore(cfg.LeaseFile, cfg.LeaseDuration(), log.Logger)
	if expired := store.CleanupExpired(); expired > 0 {
		log.Info().Int("count", expired).Msg("Cleaned up expired leases at startup")
	}

	reaper := lease.NewReaper(store, cfg.Interval, recorder, log.Logger)
	reaper.Start()
	defer reaper.Stop()

	limiter := engine.NewRateLimiter(0, log.Logger)
	limiter.Start()
	defer limiter.Stop()

	eng := engine.New(serverIP, cfg.LeaseDuration(), ipm, store, limiter, recorder, log.Logger)

	if cfg.Admin.Enabled {
		adminSrv := admin.NewServer(cfg.Admin.Listen, ipm, store, log.Logger)
		go adminSrv.Start()
		defer adminSrv.Shutdown()
	}

	// Publish pool/lease gauges alongside the reaper cadence.
	statsTicker := time.NewTicker(30 * time.Second)
	defer statsTicker.Stop()
	go func() {
		for range statsTicker.C {
			eng.PublishStats()
		}
	}()

	srv := server.New(eng, rate.NewLimiter(500, 1000), recorder, log.Logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
		srv.Close()
	}()

	if err := srv.ListenAndServe(context.Background(), *listen); err != nil {
		log.Fatal().Err(err).Msg("DHCP server failed")
	}
	log.Info().Msg("Server stopped")
}

// Command tskv-server runs the non-blocking TCP I/O core standalone with
// the Echo protocol, for manual testing and benchmarking of the reactor.
package main

import (
	"net"
	"net/http"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/momentics/tskv/channel"
	"github.com/momentics/tskv/config"
	"github.com/momentics/tskv/logging"
	"github.com/momentics/tskv/metrics"
	"github.com/momentics/tskv/protocol"
	"github.com/momentics/tskv/reactor"
)

func main() {
	fs := pflag.NewFlagSet("tskv-server", pflag.ExitOnError)
	cfg := config.FromPFlags(fs)
	fs.Parse(os.Args[1:])

	log := logging.Default()
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("tskv-server exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logging.Logger) error {
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", cfg.ListenAddr)
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		return errors.Newf("unexpected listener type for %s", cfg.ListenAddr)
	}

	fd, err := reactor.ListenerFD(tcpLn)
	if err != nil {
		return errors.Wrap(err, "dup listener fd")
	}
	if err := ln.Close(); err != nil {
		return errors.Wrap(err, "close net.Listener after dup")
	}

	r, err := reactor.New(cfg)
	if err != nil {
		return errors.Wrap(err, "construct reactor")
	}

	if err := r.AddListener(fd, func() channel.Protocol { return protocol.Echo{} }); err != nil {
		return errors.Wrap(err, "register listener")
	}

	if cfg.MetricsAddr != "" {
		startMetricsServer(cfg.MetricsAddr, log)
	}

	log.Info("tskv-server listening", zap.String("addr", cfg.ListenAddr))

	// SIGINT/SIGTERM are blocked process-wide by reactor.New and delivered
	// through its internal signalfd; no separate os/signal handling needed.
	if err := r.Run(); err != nil {
		return errors.Wrap(err, "reactor run")
	}
	r.Close()
	log.Info("tskv-server stopped")
	return nil
}

func startMetricsServer(addr string, log *logging.Logger) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewCollector())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()
}

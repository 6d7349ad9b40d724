// Command cshd hosts a CSH network file server, the Go equivalent of
// the reference implementation's server/main.py: a config-file-driven
// CLI front-end (runtime glue, explicitly out of the core's scope per
// spec.md §1) that constructs a server.Server and runs it to
// completion.
package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/cubeflix/csh/internal/config"
	"github.com/cubeflix/csh/internal/metrics"
	"github.com/cubeflix/csh/internal/userstore"
	"github.com/cubeflix/csh/server"
)

const (
	progName    = "cshd"
	description = "cshd hosts CSH network file servers."
)

var (
	flagPort        int
	flagHost        string
	flagPath        string
	flagName        string
	flagUsers       string
	flagLogFile     string
	flagLevel       string
	flagNoConfig    bool
	flagMetricsAddr string
)

func main() {
	root := &cobra.Command{
		Use:     fmt.Sprintf("%s [config]", progName),
		Short:   description,
		Args:    cobra.MaximumNArgs(1),
		RunE:    run,
		Version: "1.3.3",
	}
	root.Flags().IntVarP(&flagPort, "port", "p", 0, "Set the port to host on.")
	root.Flags().StringVarP(&flagHost, "host", "o", "", "Set the host name to host on.")
	root.Flags().StringVarP(&flagPath, "path", "d", "", "Set the path/working directory to use.")
	root.Flags().StringVarP(&flagName, "name", "n", "", "Set the name of the server.")
	root.Flags().StringVarP(&flagUsers, "users", "u", "", "The users file for the CSH server.")
	root.Flags().StringVarP(&flagLogFile, "logfile", "l", "", "Set the file the server should log to.")
	root.Flags().StringVarP(&flagLevel, "level", "e", "", "Set the logging level.")
	root.Flags().BoolVarP(&flagNoConfig, "noconfig", "c", false, "Don't use a configuration file.")
	root.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090).")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR IN MAIN: ["+err.Error()+"]")
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	configPath := "config.json"
	if len(args) == 1 {
		configPath = args[0]
	}
	if flagNoConfig {
		configPath = ""
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.ApplyFlagOverrides(flagPort, flagHost, flagPath, flagName, flagUsers, flagLogFile, flagLevel)

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	opts := []server.Option{
		server.WithRoot(resolveRoot(cfg)),
		server.WithUsersFile(cfg.UsersFile),
		server.WithLogger(logger),
		server.WithServerName(cfg.ServerName),
		server.WithBacklog(cfg.Backlog),
		server.WithSessionLimit(cfg.SessionLimit),
		server.WithSessionExpiration(cfg.DefaultExpire, cfg.AllowChangeExpire),
		server.WithSessionExpirationDelay(cfg.SessionExpireDelay),
	}
	if len(cfg.RateLimit) > 0 {
		opts = append(opts, server.WithRateLimitRules(cfg.RateLimit))
	}
	if cfg.Secure() {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return fmt.Errorf("loading TLS certificate: %w", err)
		}
		opts = append(opts, server.WithTLS(&tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tlsMinVersion(cfg.TLSProtocol),
		}))
	}

	reg := prometheus.NewRegistry()
	collector := metrics.New(reg)
	opts = append(opts, server.WithMetricsCollector(collector))

	srv, err := server.NewServer(cfg.Addr(), opts...)
	if err != nil {
		return err
	}

	if srv.Users().Count() == 0 {
		promptForFirstAdmin(srv)
	}

	if flagMetricsAddr != "" {
		serveMetrics(flagMetricsAddr, reg, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
	case <-srv.ShutdownRequested():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during shutdown", "error", err)
	}

	writeBackSettings(configPath, srv)
	return nil
}

// resolveRoot mirrors runtime.py: an empty "path" setting defaults to
// the process's current working directory.
func resolveRoot(cfg *config.Config) string {
	if cfg.Path != "" {
		return cfg.Path
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// tlsMinVersion maps the config file's "secure" tuple's protocol-name
// slot (e.g. "TLSv1_2", "TLSv1_3") onto a tls.Config MinVersion,
// defaulting to TLS 1.2 for an unrecognized or empty name.
func tlsMinVersion(name string) uint16 {
	switch strings.ToUpper(strings.ReplaceAll(name, ".", "_")) {
	case "TLSV1_3":
		return tls.VersionTLS13
	case "TLSV1_1":
		return tls.VersionTLS11
	case "TLSV1", "TLSV1_0":
		return tls.VersionTLS10
	default:
		return tls.VersionTLS12
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	out := os.Stderr
	if cfg.FileHandler != "" {
		f, err := os.OpenFile(cfg.FileHandler, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
		}
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
}

// promptForFirstAdmin mirrors main.py's empty_users(): on first run
// with no users in the store, interactively offer to bootstrap an
// admin account.
func promptForFirstAdmin(srv *server.Server) {
	fmt.Println()
	fmt.Println("----------")
	reader := bufio.NewReader(os.Stdin)

	answer := promptNonEmpty(reader, "NO USERS FOUND IN USERS FILE. WOULD YOU LIKE TO CREATE AN ADMIN USER (y/n)? ")
	if strings.ToLower(answer)[0] == 'n' {
		fmt.Println("----------")
		return
	}

	username := promptNonEmpty(reader, "USERNAME: ")
	password := promptNonEmpty(reader, "PASSWORD: ")
	fmt.Println("----------")

	if err := srv.Users().Create(username, password, userstore.PermAdmin); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR CREATING ADMIN USER: ["+err.Error()+"]")
	}
}

func promptNonEmpty(reader *bufio.Reader, prompt string) string {
	for {
		fmt.Print(prompt)
		line, _ := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
}

// writeBackSettings persists every runtime-touched setting to the
// config file, the Go equivalent of ServerRuntime.finish().
func writeBackSettings(configPath string, srv *server.Server) {
	if configPath == "" {
		return
	}
	settings := srv.Settings()
	touched := settings.Touched()
	if len(touched) == 0 {
		return
	}
	getters := map[string]func() any{
		"server_name":              func() any { return settings.ServerName() },
		"rate_limit":               func() any { return config.RateLimitToJSON(settings.RateLimitRules()) },
		"session_limit":            func() any { return settings.SessionLimit() },
		"default_expire":           func() any { return settings.DefaultExpireSeconds() },
		"allow_change_expire":      func() any { return settings.AllowChangeExpire() },
		"session_expiration_delay": func() any { return settings.SessionExpirationDelay() },
	}
	if err := config.WriteBack(configPath, touched, getters); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR WITH FINISHING ON SHUTDOWN: ["+err.Error()+"]")
	}
}

package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/NicolasHaas/relaychat/pkg/datastore"
	"github.com/NicolasHaas/relaychat/pkg/logging"
	"github.com/NicolasHaas/relaychat/pkg/server"
	"github.com/NicolasHaas/relaychat/pkg/version"
)

func main() {
	cfg := server.DefaultConfig()

	configFile := flag.String("config", "", "YAML config file (flags given explicitly override it)")
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "TCP chat bind address")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database file path")
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "HTTP bind address for Prometheus /metrics (empty to disable)")
	flag.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "Per-frame write deadline (0 disables)")
	flag.IntVar(&cfg.MaxFrameSize, "max-frame", cfg.MaxFrameSize, "Maximum inbound frame size in bytes")
	flag.IntVar(&cfg.BcryptCost, "bcrypt-cost", cfg.BcryptCost, "bcrypt cost for new passwords (0 = library default)")
	flag.DurationVar(&cfg.MetricsLogInterval, "metrics-log", cfg.MetricsLogInterval, "Interval of the metrics log line (0 disables)")
	flag.BoolVar(&cfg.ExportUsers, "export-users", false, "Export all users as YAML and exit")

	logLevel := flag.String("log-level", "info", "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("relaychat server", version.Full())
		return
	}

	// Configure structured logging
	if err := logging.Setup(logging.Options{
		Level:  *logLevel,
		Format: *logFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	if *configFile != "" {
		if err := applyConfigFile(*configFile, &cfg); err != nil {
			slog.Error("load config", "path", *configFile, "err", err)
			os.Exit(1)
		}
	}

	st, err := datastore.Open(cfg.DBPath)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()

	// Handle export commands (run and exit)
	if cfg.ExportUsers {
		data, err := server.ExportUsersYAML(st)
		if err != nil {
			slog.Error("export users", "err", err)
			os.Exit(1)
		}
		fmt.Print(string(data))
		return
	}

	creds := datastore.NewCredentials(st, cfg.BcryptCost)
	srv := server.New(cfg, server.Dependencies{Store: creds})
	if err := srv.Run(); err != nil {
		slog.Error("server error", "err", err)
		_ = st.Close()
		os.Exit(1)
	}
}

// applyConfigFile loads path over cfg, then re-applies every flag that was
// set on the command line so flags win over the file.
func applyConfigFile(path string, cfg *server.Config) error {
	explicit := *cfg
	if err := server.LoadConfigFile(path, cfg); err != nil {
		return err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = explicit.Addr
		case "db":
			cfg.DBPath = explicit.DBPath
		case "metrics":
			cfg.MetricsAddr = explicit.MetricsAddr
		case "write-timeout":
			cfg.WriteTimeout = explicit.WriteTimeout
		case "max-frame":
			cfg.MaxFrameSize = explicit.MaxFrameSize
		case "bcrypt-cost":
			cfg.BcryptCost = explicit.BcryptCost
		case "metrics-log":
			cfg.MetricsLogInterval = explicit.MetricsLogInterval
		}
	})
	return cfg.Validate()
}

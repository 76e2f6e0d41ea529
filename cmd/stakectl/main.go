// Command stakectl operates a staking ledger stored in a local bbolt file:
// registry setup, epoch funding, staking, settlement, withdrawals, claims
// and inspection.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/bitfsorg/libstake-go/config"
	"github.com/bitfsorg/libstake-go/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("stakectl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)

	verboseFlag := fs.Bool("verbose", false, "enable verbose (debug) logging")
	configFlag := fs.String("config", "", "configuration file (default <data-dir>/config.yaml)")
	dataDirFlag := fs.String("data-dir", "", "data directory (or set LIBSTAKE_DATA_DIR env var)")
	keyFlag := fs.String("key", "", "hex private key file of the signing caller (or set LIBSTAKE_KEY_FILE env var; default admin_key_file)")
	genesisFlag := fs.String("genesis-admin", "", "genesis administrator address (or set LIBSTAKE_GENESIS_ADMIN env var; default derived from admin_key_file)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: stakectl [flags] <command> [command flags]\n\nCommands:\n")
		names := make([]string, 0, len(commands))
		for name := range commands {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(stderr, "  %-22s %s\n", name, commands[name].summary)
		}
		fmt.Fprintf(stderr, "\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if v := os.Getenv("LIBSTAKE_DATA_DIR"); v != "" && *dataDirFlag == "" {
		*dataDirFlag = v
	}
	if v := os.Getenv("LIBSTAKE_KEY_FILE"); v != "" && *keyFlag == "" {
		*keyFlag = v
	}
	if v := os.Getenv("LIBSTAKE_GENESIS_ADMIN"); v != "" && *genesisFlag == "" {
		*genesisFlag = v
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return errors.New("no command given")
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", rest[0])
	}

	cfg, cfgPath, err := loadConfig(*configFlag, *dataDirFlag)
	if err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	if *verboseFlag {
		level = slog.LevelDebug
	}

	a := &app{
		cfg:          cfg,
		cfgPath:      cfgPath,
		log:          logger.NewWithWriter(stderr, level),
		out:          stdout,
		keyFile:      *keyFlag,
		genesisAdmin: *genesisFlag,
	}
	return cmd.run(ctx, a, rest[1:])
}

// loadConfig reads the configuration file, falling back to defaults when it
// does not exist. dataDir, when set, overrides the file.
func loadConfig(path, dataDir string) (config.Config, string, error) {
	if path == "" {
		dir := dataDir
		if dir == "" {
			dir = config.DefaultDataDir()
		}
		path = config.ConfigPath(dir)
	}

	cfg, err := config.LoadConfig(path)
	if err != nil && !errors.Is(err, config.ErrConfigNotFound) {
		return cfg, path, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return cfg, path, err
	}
	return cfg, path, nil
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.etcd.io/bbolt"

	"github.com/jmcleod/kycagent/api"
	"github.com/jmcleod/kycagent/app"
	"github.com/jmcleod/kycagent/imagehost"
	"github.com/jmcleod/kycagent/internal/config"
	"github.com/jmcleod/kycagent/securestore"
	bboltstorage "github.com/jmcleod/kycagent/storage/bbolt"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var (
	configPath string
	dataDir    string
	apiURL     string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "kycagent",
	Short: "kycagent is the KYC field agent client",
	Long: `Sign in as a field agent, submit and review KYC applications,
register customers and manage passwords against the KYC backend.
Run "kycagent sandbox" for a local fake of the backend.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %s\n", api.UserMessage(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default <data-dir>/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory for the token store and device secret")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Base URL of the KYC backend")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	path, required := configPath, configPath != ""
	if path == "" {
		path = filepath.Join(configDir(os.LookupEnv), config.FileName)
	}

	c, err := config.Load(path, required)
	if err != nil {
		return err
	}
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return err
	}
	if dataDir != "" {
		c.DataDir = dataDir
	}
	if apiURL != "" {
		c.APIURL = apiURL
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	if err := c.Validate(); err != nil {
		return err
	}

	l, err := newLogger(cmd.ErrOrStderr(), c.LogLevel)
	if err != nil {
		return err
	}
	cfg, logger = c, l
	return nil
}

// configDir is where config.yaml is looked for when --config is not given:
// --data-dir, then KYCAGENT_DATA_DIR, then the default data directory.
func configDir(lookup func(string) (string, bool)) string {
	if dataDir != "" {
		return dataDir
	}
	if v, ok := lookup(config.EnvDataDir); ok && v != "" {
		return v
	}
	return config.DefaultDataDir()
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// openApp opens the token store in the data directory and starts an App
// over it. The returned func releases both.
func openApp(ctx context.Context) (*app.App, func(), error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	repo, err := bboltstorage.NewRepositoryFromFile(cfg.StorePath(), &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open token store: %w", err)
	}

	secret := cfg.StorePassphrase
	if secret == "" {
		if secret, err = securestore.LoadOrCreateSecret(cfg.SecretPath()); err != nil {
			repo.Close()
			return nil, nil, err
		}
	}
	store, err := securestore.Open(repo, secret, securestore.WithLogger(logger))
	if err != nil {
		repo.Close()
		return nil, nil, fmt.Errorf("failed to unlock token store: %w", err)
	}

	client := api.New(cfg.APIURL, cfg.ClientID, api.WithTimeout(cfg.Timeout), api.WithLogger(logger))
	uploader := imagehost.NewImgBB(cfg.ImageHostKey,
		imagehost.WithEndpoint(cfg.ImageHostURL),
		imagehost.WithTimeout(cfg.Timeout),
		imagehost.WithLogger(logger),
	)
	a := app.New(client, uploader, store, app.WithDatabase(cfg.Database), app.WithLogger(logger))
	closeFn := func() {
		a.Close()
		repo.Close()
	}
	if err := a.Start(ctx); err != nil {
		closeFn()
		return nil, nil, err
	}
	return a, closeFn, nil
}

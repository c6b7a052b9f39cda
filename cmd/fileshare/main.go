package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fileshare/internal/app"
	"fileshare/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to defaults when none exists yet.
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if errors.Is(err, fs.ErrNotExist) {
		return config.NewConfig(defaults["base_dir"]), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

var rootCmd = &cobra.Command{
	Use:           "fileshare",
	Short:         "Multi-user file sharing over TCP",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:      %s\n", cfg.LogDir)
		fmt.Printf("Listen:       %s\n", cfg.Server.ListenAddr)
		fmt.Printf("Store:        %s %s%s\n", cfg.Store.Type, cfg.Store.Root, cfg.Store.S3Bucket)
		fmt.Printf("Journal:      %s %s\n", cfg.Journal.Type, cfg.Journal.DataDir)
		fmt.Printf("Server Addr:  %s\n", cfg.Client.ServerAddr)
		fmt.Printf("Download Dir: %s\n", cfg.Client.DownloadDir)
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the file sharing server",
	RunE: func(cmd *cobra.Command, args []string) error {
		listen, _ := cmd.Flags().GetString("listen")
		verbose, _ := cmd.Flags().GetBool("verbose")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		a, err := app.NewServerApp(cfg, app.LogOptions{Verbose: verbose, Echo: os.Stderr})
		if err != nil {
			return fmt.Errorf("initializing server: %w", err)
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return a.Run(ctx, listen)
	},
}

// connect command
var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to a server and issue commands interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		username, _ := cmd.Flags().GetString("username")
		verbose, _ := cmd.Flags().GetBool("verbose")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runREPL(ctx, cfg, addr, username, verbose)
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View the server's operation journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ops, err := app.History(cfg, limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}
		for _, op := range ops {
			fmt.Println(app.FormatOperation(op))
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("listen", "l", "", "Listen address (default from config, :5000)")
	serveCmd.Flags().BoolP("verbose", "v", false, "Log debug output")

	rootCmd.AddCommand(connectCmd)
	connectCmd.Flags().StringP("addr", "a", "", "Server address (default from config)")
	connectCmd.Flags().StringP("username", "u", "", "Username to claim (prompted if empty)")
	connectCmd.Flags().BoolP("verbose", "v", false, "Log debug output")

	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}

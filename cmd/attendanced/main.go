package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"attendance-backend/config"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  = log.New(os.Stdout, "attendance-backend ", log.LstdFlags)
)

var rootCmd = &cobra.Command{
	Use:   "attendanced",
	Short: "Fingerprint attendance backend",
	Long:  `Serves the attendance REST API and the WebSocket endpoint used by the fingerprint sensor.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = os.Getenv("CONFIG_PATH")
		}
		if path == "" {
			path = "./config/config.yaml" // Default path for local development
		}

		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load configuration from %s: %w", path, err)
		}
		logger.Printf("configuration loaded successfully from %s", path)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $CONFIG_PATH or ./config/config.yaml)")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

//go:build linux

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	tatami "github.com/tatami-wm/tatami"
	"github.com/tatami-wm/tatami/internal/config"
	"github.com/tatami-wm/tatami/internal/logger"
)

var version = "dev"

var (
	flagCard     string
	flagKeymap   string
	flagSocket   int
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "tatami",
	Short: "A tiling Wayland compositor on DRM/KMS",
	Long: `tatami hosts Wayland clients directly on a DRM device: it composes
their surfaces with the GPU, presents via atomic kernel mode-setting, and
reads input from libinput.

Hotkeys (with Alt held): Esc quits, T spawns a terminal, C closes the
focused window.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("tatami", version)
	},
}

func init() {
	rootCmd.Flags().StringVar(&flagCard, "card", "", "DRM device path (default from config)")
	rootCmd.Flags().StringVar(&flagKeymap, "keymap", "", "xkb layout name (default from config)")
	rootCmd.Flags().IntVar(&flagSocket, "socket", 0, "wayland-<n> socket index (default from config)")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.AddCommand(versionCmd)
}

func run() error {
	cfg, loadErr := config.Load()

	if flagCard != "" {
		cfg.Card = flagCard
	}
	if flagKeymap != "" {
		cfg.Keymap = flagKeymap
	}
	if flagSocket != 0 {
		cfg.Socket = flagSocket
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}

	log := logger.New(cfg.LogLevel)
	if loadErr != nil {
		log.Warn().Err(loadErr).Msg("config unreadable, using defaults")
	}

	log.Info().
		Str("card", cfg.Card).
		Str("keymap", cfg.Keymap).
		Str("socket", cfg.SocketName()).
		Msg("starting")

	return tatami.New(cfg, log).Run()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

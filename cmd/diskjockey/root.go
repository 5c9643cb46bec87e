package main

import (
	"fmt"
	"log"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/satindergrewal/diskjockey/internal/api"
	"github.com/satindergrewal/diskjockey/internal/config"
	"github.com/satindergrewal/diskjockey/internal/deck"
	"github.com/satindergrewal/diskjockey/internal/engine"
	"github.com/satindergrewal/diskjockey/internal/mixer"
	"github.com/satindergrewal/diskjockey/internal/output"
	"github.com/satindergrewal/diskjockey/internal/stream"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath    string
	port          int
	noLocalOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "diskjockey",
	Short: "Two-deck DJ mixer with a browser control surface",
	Long: `diskjockey runs a two-deck mixer: load a track on each deck, set pitch,
bend and cue points, and blend them through an equal-power crossfader.

The master bus plays on the local sound card and is available to the
browser as an MP3 stream (/api/monitor.mp3) or a WebRTC Opus track
(/api/monitor/offer). Configuration comes from an optional YAML file
(--config) and DJ_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mixer and its control API",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "diskjockey", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().IntVar(&port, "port", 0, "HTTP port (overrides config)")
		cmd.Flags().BoolVar(&noLocalOutput, "no-local-output", false, "do not open the sound card")
	}
	rootCmd.AddCommand(serveCmd, versionCmd)
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if port > 0 {
		cfg.Port = port
	}
	if noLocalOutput {
		cfg.LocalOutput = false
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Println("diskjockey starting up...")

	// Broadcaster: fan-out master frames to the speaker and the monitors
	broadcaster := stream.NewBroadcaster()

	var (
		speakerMu sync.Mutex
		speaker   *output.Speaker
	)
	factory := func() (*engine.Context, error) {
		var device engine.Device = output.Null{}
		if cfg.LocalOutput {
			speakerMu.Lock()
			speaker = output.NewSpeaker(broadcaster.Subscribe(5))
			device = speaker
			speakerMu.Unlock()
		}
		eng := engine.NewContext(device, engine.WithResumeTimeout(cfg.ResumeTimeout))
		go eng.Run(ctx)
		go broadcaster.Run(ctx, eng.Frames())
		return eng, nil
	}

	mx := mixer.NewController(factory, mixer.WithDeckOptions(deck.WithCueDebounce(cfg.CueDebounce)))
	webrtcHandler := stream.NewWebRTCHandler(broadcaster, cfg.OpusBitrate)
	mp3Handler := stream.NewHTTPHandler(broadcaster, cfg.MP3Bitrate)

	gin.SetMode(gin.ReleaseMode)
	srv := api.New(cfg, mx, api.WithMonitors(mp3Handler, webrtcHandler))

	if !cfg.LocalOutput {
		log.Println("Local output disabled, master bus only on monitors")
	}
	runErr := srv.Run(ctx, fmt.Sprintf(":%d", cfg.Port))

	log.Println("Shutting down...")
	webrtcHandler.Close()
	if err := mx.Close(); err != nil {
		log.Printf("Engine close: %v", err)
	}
	speakerMu.Lock()
	if speaker != nil {
		speaker.Close()
	}
	speakerMu.Unlock()
	return runErr
}

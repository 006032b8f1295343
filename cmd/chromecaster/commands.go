package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/melchor629/chromecaster/internal/broadcast"
	"github.com/melchor629/chromecaster/internal/cast"
	"github.com/melchor629/chromecaster/internal/discovery"
	"github.com/melchor629/chromecaster/internal/ui"
)

// Discovery flags
var (
	searchSeconds int
	transportName string
)

// Stream flags
var (
	streamHost  string
	streamPort  int
	contentType string
	streamTitle string
)

// Cast flags
var (
	deviceName  string
	interactive bool
)

func init() {
	addDiscoveryFlags(listCmd)
	addDiscoveryFlags(castCmd)
	addStreamFlags(serveCmd)
	addStreamFlags(castCmd)

	castCmd.Flags().StringVar(&deviceName, "device", "", "Friendly name of the device to cast to (case-insensitive)")
	castCmd.Flags().BoolVar(&interactive, "select", false, "Choose the device from an interactive list")
	castCmd.Flags().StringVar(&streamTitle, "title", "", "Title shown on the receiver")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(castCmd)
}

func addDiscoveryFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&searchSeconds, "timeout", 0, "Seconds to search for devices (default from config)")
	cmd.Flags().StringVar(&transportName, "transport", "", "mDNS transport: native, zeroconf or hashicorp")
}

func addStreamFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&streamHost, "host", "", "Listen address (empty = all interfaces)")
	cmd.Flags().IntVar(&streamPort, "port", 0, "First port to try (default from config)")
	cmd.Flags().StringVar(&contentType, "content-type", "", "Content-Type of the stream (default from config)")
}

// applyFlags copies every flag the user set over the loaded config
func applyFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("timeout") {
		cfg.Discovery.SearchDurationSeconds = searchSeconds
	}
	if flags.Changed("transport") {
		cfg.Discovery.Transport = transportName
	}
	if flags.Changed("port") {
		cfg.Stream.Port = streamPort
	}
	if flags.Changed("content-type") {
		cfg.Stream.ContentType = contentType
	}
	if flags.Changed("title") {
		cfg.Stream.Title = streamTitle
	}
	if flags.Changed("device") {
		cfg.Cast.Device = deviceName
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// listCmd prints every device found within the search duration
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List Cast devices on the network",
	Long: `Search for Google Cast receivers using multicast DNS and print them.

Devices are numbered in the order they answered. Both IPv4 and IPv6 are
queried; the first address shown is the one used for casting.`,
	Example: `  # Search for 5 seconds (default)
  chromecaster list

  # Longer search on a busy network
  chromecaster list --timeout 15

  # Use the zeroconf library instead of the built-in resolver
  chromecaster list --transport zeroconf`,
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	applyFlags(cmd)
	ctx, stop := signalContext()
	defer stop()

	engine, err := newEngine()
	if err != nil {
		return err
	}
	if err := engine.Start(ctx); err != nil {
		return err
	}

	printer := ui.NewPrinter(os.Stderr)
	printer.Println(fmt.Sprintf("Searching for Cast devices (%ds)...", cfg.Discovery.SearchDurationSeconds))

	select {
	case <-time.After(cfg.Discovery.SearchDuration()):
	case <-ctx.Done():
	}

	devices := engine.Devices()
	if err := engine.Stop(); err != nil {
		return err
	}

	ui.NewPrinter(os.Stdout).PrintDevices(devices)
	if len(devices) == 0 {
		printer.PrintError("No devices found", nil, []string{
			"Check that this machine and the receivers share a network",
			"Some routers block multicast between Wi-Fi and Ethernet",
			"Try increasing --timeout",
			"Try another resolver with --transport zeroconf",
		})
	}
	return nil
}

// serveCmd broadcasts stdin without talking to any device
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Broadcast stdin over HTTP",
	Long: `Serve the bytes read from stdin to every client connected to the stream URL.

Clients joining late receive the stream from the moment they connect;
nothing is buffered for them. The command exits when stdin ends or on
Ctrl+C.`,
	Example: `  # Serve an MP3 encoder's output on port 3000 (or the next free one)
  ffmpeg -i input.flac -f mp3 - | chromecaster serve

  # Serve AAC on a fixed port
  chromecaster serve --port 8080 --content-type audio/aac < radio.aac`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	applyFlags(cmd)
	ctx, stop := signalContext()
	defer stop()

	srv, err := newServer()
	if err != nil {
		return err
	}

	printer := ui.NewPrinter(os.Stderr)
	printer.PrintHeader("Streaming", "chromecaster serve", streamDetails(srv))
	srv.Subscribe(consumerPrinter(printer))

	return broadcastStdin(ctx, srv)
}

// castCmd picks a device, then broadcasts stdin for it
var castCmd = &cobra.Command{
	Use:   "cast",
	Short: "Cast stdin to a device",
	Long: `Discover a Cast receiver, bind a control session to it and broadcast stdin.

The device is chosen by --device, by the interactive list with --select,
or else the first device that answers. The default device can also be set
in the config file under cast.device.

Chromecaster does not speak the Cast v2 control protocol itself. It finds
the device and serves the stream, then prints the URL; playback has to be
started on the receiver by another Cast sender.`,
	Example: `  # Cast to the first device found
  ffmpeg -i input.flac -f mp3 - | chromecaster cast

  # Cast to a named device
  chromecaster cast --device "Living Room" < song.mp3

  # Pick from a live list
  chromecaster cast --select < song.mp3`,
	RunE: runCast,
}

func runCast(cmd *cobra.Command, args []string) error {
	applyFlags(cmd)
	ctx, stop := signalContext()
	defer stop()

	engine, err := newEngine()
	if err != nil {
		return err
	}
	if err := engine.Start(ctx); err != nil {
		return err
	}

	// resolve before stopping discovery, which clears the registry
	device, err := chooseDevice(ctx, engine)
	if err != nil {
		_ = engine.Stop()
		return err
	}
	session, err := engine.CreateClientFor(device)
	stopErr := engine.Stop()
	if err != nil {
		return err
	}
	if stopErr != nil {
		return stopErr
	}

	srv, err := newServer()
	if err != nil {
		return err
	}
	session.SetStream(srv)
	session.SetTitle(cfg.Stream.Title)

	media, err := session.Media()
	if err != nil {
		_ = srv.Stop()
		return err
	}

	printer := ui.NewPrinter(os.Stderr)
	printer.PrintSuccess("Casting to "+session.Name, []ui.Detail{
		{Key: "Device", Value: session.Address},
		{Key: "URL", Value: media.ContentID},
		{Key: "Type", Value: media.ContentType},
		{Key: "Title", Value: media.Title},
	})
	srv.Subscribe(consumerPrinter(printer))

	if err := session.Connect(ctx); err != nil {
		if !errors.Is(err, cast.ErrNoController) {
			_ = srv.Stop()
			return err
		}
		// no Cast v2 controller is linked in: the receiver has to be
		// pointed at the URL by another sender
		printer.Println(ui.RenderHorizontalDivider(printer.Width(), "─"))
		printer.Println("Open " + media.ContentID + " on " + session.Name + " to start playback.")
	}
	defer func() { _ = session.Close() }()

	return broadcastStdin(ctx, srv)
}

// chooseDevice applies the --select, --device and first-found rules
func chooseDevice(ctx context.Context, engine *discovery.Engine) (discovery.Device, error) {
	timeout := cfg.Discovery.SearchDuration()

	if interactive {
		if !ui.IsTerminal(os.Stderr) {
			return discovery.Device{}, errors.New("--select needs an interactive terminal")
		}
		name, err := ui.PickDevice(ctx, engine, os.Stderr)
		if err != nil {
			return discovery.Device{}, err
		}
		return engine.Device(name)
	}

	if cfg.Cast.Device != "" {
		return waitForDevice(ctx, engine, timeout, matchName(cfg.Cast.Device))
	}
	return waitForDevice(ctx, engine, timeout, anyDevice)
}

func newEngine() (*discovery.Engine, error) {
	transport, err := discovery.NewTransport(cfg.Discovery.Transport)
	if err != nil {
		return nil, err
	}
	engine := discovery.NewEngine(transport)
	engine.SetService(cfg.Discovery.Service)
	return engine, nil
}

func newServer() (*broadcast.Server, error) {
	srv, err := broadcast.New(broadcast.Config{
		Host:            streamHost,
		Port:            cfg.Stream.Port,
		ContentType:     cfg.Stream.ContentType,
		MaxPortAttempts: cfg.Stream.MaxPortAttempts,
		WriteTimeout:    cfg.Stream.WriteTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create stream server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return nil, err
	}
	return srv, nil
}

func streamDetails(srv *broadcast.Server) []ui.Detail {
	return []ui.Detail{
		{Key: "URL", Value: srv.URL()},
		{Key: "Port", Value: strconv.Itoa(srv.Port())},
		{Key: "Type", Value: srv.ContentType()},
	}
}

// consumerPrinter reports consumers joining and leaving
func consumerPrinter(p *ui.Printer) broadcast.Observer {
	return broadcast.ObserverFuncs{
		OnConnected: func(info broadcast.ConsumerInfo) {
			p.Println(fmt.Sprintf("%s listener #%d joined from %s", ui.SuccessMarker, info.ID, info.Address))
		},
		OnDisconnected: func(info broadcast.ConsumerInfo) {
			p.Println(fmt.Sprintf("%s listener #%d left", ui.FailureMarker, info.ID))
		},
	}
}

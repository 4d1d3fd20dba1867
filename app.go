package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kwv/probemesh/mesh"
)

// App encapsulates the application state and dependencies
type App struct {
	Config       *mesh.Config
	StateTracker *mesh.StateTracker
	MQTTClient   *mesh.MQTTClient
	Publisher    *mesh.Publisher
	Metrics      *mesh.Metrics
	Store        *mesh.Store
	Hub          *frameHub

	opts AppOptions
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		StateTracker: mesh.NewStateTracker(),
		Metrics:      mesh.NewMetrics(),
		opts:         AppOptions{Out: os.Stdout},
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	a.opts = opts
}

func (a *App) out() io.Writer {
	return a.opts.Out
}

// registerOptions merges the config file settings with the CLI flags
func (a *App) registerOptions() mesh.RegisterOptions {
	var opts mesh.RegisterOptions
	if a.Config != nil {
		opts = a.Config.RegisterOptions()
	}
	if a.opts.Workers > 0 {
		opts.Workers = a.opts.Workers
	}
	if a.opts.MaxPasses > 0 {
		opts.MaxPasses = a.opts.MaxPasses
	}
	opts.Verbose = opts.Verbose || a.opts.Verbose
	opts.Metrics = a.Metrics
	return opts
}

// solveFile parses a scanner report file and solves it
func (a *App) solveFile(path string) (*mesh.GlobalFrame, *mesh.RegistrationGraph, error) {
	scanners, err := mesh.ParseScannerFile(path)
	if err != nil {
		return nil, nil, err
	}
	if a.opts.Verbose {
		for _, sum := range mesh.SummarizeScanners(scanners) {
			fmt.Fprintf(a.out(), "scanner %d: %d probes, extent %s .. %s\n", sum.ID, sum.ProbeCount, sum.Min, sum.Max)
		}
	}
	return mesh.SolveCached(context.Background(), scanners, a.opts.CachePath, a.registerOptions())
}

// RunSolve prints the number of distinct landmarks and the largest
// manhattan distance between two scanners.
func (a *App) RunSolve(path string) error {
	frame, g, err := a.solveFile(path)
	if err != nil {
		return err
	}

	out := a.out()
	fmt.Fprintf(out, "res1: %d\n", frame.LandmarkCount())
	fmt.Fprintf(out, "res2: %d\n", frame.MaxScannerDistance())

	if a.opts.Verbose {
		fmt.Fprintf(out, "\nRegistered %d scanners in %d passes\n", g.Len(), g.Passes())
		for _, pos := range frame.Positions {
			if pos.Parent < 0 {
				fmt.Fprintf(out, "  scanner %d: %s (reference)\n", pos.ScannerID, pos.Position)
				continue
			}
			fmt.Fprintf(out, "  scanner %d: %s (via %d)\n", pos.ScannerID, pos.Position, pos.Parent)
		}
		if i, j, d, ok := frame.FarthestPair(); ok {
			fmt.Fprintf(out, "Farthest pair: %d and %d (%d)\n", i, j, d)
		}
	}
	return nil
}

// RunRender solves a scanner file and writes a top-down image of the frame
func (a *App) RunRender(path string) error {
	frame, _, err := a.solveFile(path)
	if err != nil {
		return err
	}

	output := a.opts.OutputFile
	if output == "" {
		output = "frame.png"
	}

	switch a.opts.RenderFormat {
	case "svg", "vector-png":
		if err := a.saveVector(frame, output, a.opts.RenderFormat == "svg"); err != nil {
			return err
		}
	default:
		renderer := mesh.NewFrameRenderer(frame)
		if a.Config != nil {
			renderer.ApplyConfig(a.Config.Render)
		}
		if err := renderer.SavePNG(output); err != nil {
			return err
		}
	}

	fmt.Fprintf(a.out(), "Created: %s (%d landmarks, %d scanners)\n", output, frame.LandmarkCount(), len(frame.Positions))
	return nil
}

func (a *App) saveVector(frame *mesh.GlobalFrame, output string, svg bool) error {
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("creating %s: %w", output, err)
	}
	defer f.Close()

	renderer := mesh.NewVectorRenderer(frame)
	if a.Config != nil {
		renderer.ApplyConfig(a.Config.Render)
	}
	if svg {
		err = renderer.RenderToSVG(f)
	} else {
		err = renderer.RenderToPNG(f)
	}
	if err != nil {
		return fmt.Errorf("rendering %s: %w", output, err)
	}
	return f.Close()
}

// RunGeoJSON solves a scanner file and writes the frame as GeoJSON
func (a *App) RunGeoJSON(path string) error {
	frame, _, err := a.solveFile(path)
	if err != nil {
		return err
	}

	output := a.opts.OutputFile
	if output == "" {
		output = "frame.geojson"
	}
	if err := mesh.SaveGeoJSON(frame, output); err != nil {
		return err
	}
	fmt.Fprintf(a.out(), "Created: %s\n", output)
	return nil
}

// RunInitConfig writes a starter config for input to the output file. An
// existing file is never overwritten.
func (a *App) RunInitConfig(input string) error {
	path := a.opts.OutputFile
	if path == "" {
		path = "config.yaml"
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	// LoadConfig resolves relative paths against the config's directory
	if !mesh.IsRemoteInput(input) {
		abs, err := filepath.Abs(input)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", input, err)
		}
		input = abs
	}
	config := &mesh.Config{Input: input}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return err
	}
	if err := mesh.SaveConfig(path, config); err != nil {
		return err
	}
	fmt.Fprintf(a.out(), "Wrote %s\n", path)
	return nil
}

// RunService runs until interrupted: it loads the configuration, solves the
// input file (re-solving on change), ingests reports over MQTT and serves
// the HTTP API.
func (a *App) RunService() error {
	config, err := mesh.LoadConfig(a.opts.ConfigFile)
	if err != nil {
		return fmt.Errorf("loading config %s: %w", a.opts.ConfigFile, err)
	}
	a.Config = config
	log.Printf("Loaded config from %s", a.opts.ConfigFile)

	if a.opts.HTTPPort > 0 {
		config.HTTP.Port = a.opts.HTTPPort
	}
	a.StateTracker = mesh.NewStateTrackerWithCache(config.Registration.CachePath)
	a.Hub = newFrameHub()
	defer a.Hub.closeAll()

	if config.Store.Path != "" {
		store, err := mesh.OpenStore(config.Store.Path)
		if err != nil {
			return err
		}
		a.Store = store
		defer a.Store.Close()
		log.Printf("[STORE] Recording runs to %s", config.Store.Path)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if config.MQTT.ReportTopic != "" {
		mqttClient, err := mesh.InitMQTT(config, a.handleReport(ctx))
		if err != nil {
			return fmt.Errorf("initializing MQTT: %w", err)
		}
		if mqttClient == nil {
			return errors.New("MQTT report topic set but no broker configured")
		}
		a.MQTTClient = mqttClient
		defer a.MQTTClient.Disconnect()

		a.Publisher = mesh.NewPublisherFromConfig(mqttClient.GetClient(), config.MQTT)
		log.Printf("[MQTT] Publishing frames to %s", a.Publisher.FrameTopic())
	}

	if config.Input != "" {
		if err := a.loadInput(ctx, config.Input); err != nil {
			log.Printf("[WATCH] Initial solve of %s failed: %v", config.Input, err)
		}

		if mesh.IsRemoteInput(config.Input) {
			if config.PollSeconds > 0 {
				go a.pollInput(ctx, config.Input, time.Duration(config.PollSeconds)*time.Second)
			}
		} else {
			watcher, err := NewInputWatcher(config.Input, func() {
				if err := a.loadInput(ctx, config.Input); err != nil {
					log.Printf("[WATCH] Re-solve of %s failed, keeping previous frame: %v", config.Input, err)
				}
			})
			if err != nil {
				return err
			}
			if err := watcher.Start(); err != nil {
				return err
			}
			defer watcher.Stop()
		}
	}

	server := &http.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%d", config.HTTP.Port),
		Handler: newHTTPServer(a.StateTracker, config, a.Metrics, a.Store, a.Hub),
	}
	go func() {
		log.Printf("[HTTP] Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[HTTP] Server error: %v", err)
			stop()
		}
	}()

	fmt.Fprintln(a.out(), "\nService Running")
	fmt.Fprintln(a.out(), "===============")
	fmt.Fprintf(a.out(), "HTTP endpoints (port %d): /health /frame /frame/landmarks /scanners/{id} /frame.geojson /frame.png /frame.svg /runs /ws /metrics\n", config.HTTP.Port)
	if config.MQTT.ReportTopic != "" {
		fmt.Fprintf(a.out(), "MQTT: reports from %s\n", config.MQTT.ReportTopic)
	}
	fmt.Fprintln(a.out(), "Press Ctrl+C to stop")

	<-ctx.Done()

	fmt.Fprintln(a.out(), "\nShutting down service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// loadInput replaces the tracked scanners with the input's reports and re-solves
func (a *App) loadInput(ctx context.Context, input string) error {
	scanners, err := mesh.LoadScanners(ctx, input)
	if err != nil {
		return err
	}
	a.StateTracker.SetScanners(scanners)
	return a.solveAndPublish(ctx)
}

// pollInput refetches a URL input every interval until ctx is done
func (a *App) pollInput(ctx context.Context, url string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.loadInput(ctx, url); err != nil {
				log.Printf("[WATCH] Refetch of %s failed, keeping previous frame: %v", url, err)
			}
		}
	}
}

// handleReport returns the MQTT report handler: store the report, then
// re-solve once every scanner from 0 to the highest id has reported.
func (a *App) handleReport(ctx context.Context) mesh.ReportHandler {
	return func(topic string, scanner mesh.Scanner, err error) {
		if err != nil {
			log.Printf("[MQTT] Ignoring report on %s: %v", topic, err)
			return
		}
		a.StateTracker.UpdateScanner(scanner)
		log.Printf("[MQTT] Scanner %d reported %d probes", scanner.ID, len(scanner.Probes))

		if !a.StateTracker.Complete() {
			return
		}
		if err := a.solveAndPublish(ctx); err != nil {
			log.Printf("[REGISTER] Solve after report from scanner %d failed: %v", scanner.ID, err)
		}
	}
}

// solveAndPublish solves the tracked scanners, then records and publishes the frame
func (a *App) solveAndPublish(ctx context.Context) error {
	snap, err := a.StateTracker.Solve(ctx, a.registerOptions())
	if err != nil {
		return err
	}
	frame := snap.Frame
	log.Printf("[REGISTER] Run %s: %d landmarks, max scanner distance %d",
		frame.RunID, frame.LandmarkCount(), frame.MaxScannerDistance())

	if a.Store != nil {
		if err := a.Store.RecordRun(ctx, frame, snap.Graph); err != nil {
			log.Printf("[STORE] Failed to record run %s: %v", frame.RunID, err)
		}
	}
	if a.Publisher != nil {
		if err := a.Publisher.PublishFrame(frame); err != nil {
			log.Printf("[MQTT] Failed to publish run %s: %v", frame.RunID, err)
		}
	}
	if a.Hub != nil {
		a.Hub.publish(frame)
	}
	return nil
}

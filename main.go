package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions carries the command-line options shared by the commands.
type AppOptions struct {
	ConfigFile   string
	CachePath    string
	Workers      int
	MaxPasses    int
	Verbose      bool
	OutputFile   string
	RenderFormat string
	HTTPPort     int
	Out          io.Writer
}

// Application is the behaviour the CLI dispatches to.
type Application interface {
	ApplyOptions(opts AppOptions)
	RunSolve(path string) error
	RunRender(path string) error
	RunGeoJSON(path string) error
	RunService() error
	RunInitConfig(input string) error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		os.Exit(1)
	}
}

// run executes the CLI with args, writing command output to out.
func run(args []string, out io.Writer, app Application) error {
	rootCmd := newRootCmd(app, out)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	return rootCmd.Execute()
}

// newRootCmd creates the root Cobra command
func newRootCmd(app Application, out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "probemesh",
		Short: "probemesh registers 3D scanner reports into one global frame",
		Long: `probemesh aligns scanner reports that share landmarks, chains the
alignments back to scanner 0 and reports every landmark and scanner in that
frame. It runs once from a file or as a service fed by MQTT.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newSolveCmd(app, out))
	rootCmd.AddCommand(newRenderCmd(app, out))
	rootCmd.AddCommand(newGeoJSONCmd(app, out))
	rootCmd.AddCommand(newServeCmd(app, out))
	rootCmd.AddCommand(newInitConfigCmd(app, out))
	rootCmd.AddCommand(newVersionCmd(out))

	return rootCmd
}

// registrationFlags binds the flags that tune registration
func registrationFlags(cmd *cobra.Command, opts *AppOptions) {
	cmd.Flags().IntVar(&opts.Workers, "workers", 1, "Parallel alignment attempts (1 = sequential)")
	cmd.Flags().IntVar(&opts.MaxPasses, "max-passes", 0, "Stop registration after this many passes (0 = until no progress)")
	cmd.Flags().StringVar(&opts.CachePath, "cache", "", "Registration cache file (empty disables)")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Log each alignment and pass")
}

func newSolveCmd(app Application, out io.Writer) *cobra.Command {
	opts := AppOptions{Out: out}

	cmd := &cobra.Command{
		Use:   "solve <scanner_file>",
		Short: "Print the landmark count and the largest scanner distance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app.ApplyOptions(opts)
			return app.RunSolve(args[0])
		},
	}
	registrationFlags(cmd, &opts)
	return cmd
}

func newRenderCmd(app Application, out io.Writer) *cobra.Command {
	opts := AppOptions{Out: out}

	cmd := &cobra.Command{
		Use:   "render <scanner_file>",
		Short: "Render a top-down view of the global frame",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch opts.RenderFormat {
			case "raster", "svg", "vector-png":
			default:
				return fmt.Errorf("unknown render format %q (want raster, svg or vector-png)", opts.RenderFormat)
			}
			app.ApplyOptions(opts)
			return app.RunRender(args[0])
		},
	}
	registrationFlags(cmd, &opts)
	cmd.Flags().StringVarP(&opts.OutputFile, "output", "o", "frame.png", "Output file")
	cmd.Flags().StringVar(&opts.RenderFormat, "format", "raster", "Render format: raster, svg or vector-png")
	return cmd
}

func newGeoJSONCmd(app Application, out io.Writer) *cobra.Command {
	opts := AppOptions{Out: out}

	cmd := &cobra.Command{
		Use:   "geojson <scanner_file>",
		Short: "Export landmarks and scanners as GeoJSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app.ApplyOptions(opts)
			return app.RunGeoJSON(args[0])
		},
	}
	registrationFlags(cmd, &opts)
	cmd.Flags().StringVarP(&opts.OutputFile, "output", "o", "frame.geojson", "Output file")
	return cmd
}

func newServeCmd(app Application, out io.Writer) *cobra.Command {
	opts := AppOptions{Out: out}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, MQTT ingest and input watcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(out, "probemesh %s service starting...\n", Version)
			app.ApplyOptions(opts)
			return app.RunService()
		},
	}
	cmd.Flags().StringVarP(&opts.ConfigFile, "config", "c", "config.yaml", "Path to configuration file")
	cmd.Flags().IntVar(&opts.HTTPPort, "http-port", 0, "HTTP server port (overrides config)")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Log each alignment and pass")
	return cmd
}

func newInitConfigCmd(app Application, out io.Writer) *cobra.Command {
	opts := AppOptions{Out: out}

	cmd := &cobra.Command{
		Use:   "init-config <scanner_file_or_url>",
		Short: "Write a starter service config for an input",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app.ApplyOptions(opts)
			return app.RunInitConfig(args[0])
		},
	}
	cmd.Flags().StringVarP(&opts.OutputFile, "output", "o", "config.yaml", "Config file to create")
	return cmd
}

func newVersionCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(out, "probemesh version: %s\n", Version)
		},
	}
}

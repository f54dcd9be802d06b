// Package main is the entry point for the Treeline plugin host.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/treelinehq/treeline/internal/app"
	"github.com/treelinehq/treeline/internal/db"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  string
		dbPath      string
		pluginDir   string
		seed        string
		listPlugins bool
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&dbPath, "db", "", "Path to the SQLite database (overrides config)")
	flag.StringVar(&pluginDir, "plugins", "", "Plugin directory (overrides config)")
	flag.StringVar(&seed, "seed", "", "Seed the database with a demo scenario and keep running")
	flag.BoolVar(&listPlugins, "list-plugins", false, "List discovered plugins and exit")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Treeline - personal finance plugin host\n\n")
		fmt.Fprintf(os.Stderr, "Usage: treeline [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nDemo scenarios: %v\n", scenarioNames())
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("Treeline %s (%s)\n", version, commit)
		return 0
	}

	application, err := app.New(app.Options{
		ConfigPath: configPath,
		DBPath:     dbPath,
		PluginDir:  pluginDir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer application.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if listPlugins {
		printPlugins(application)
		return 0
	}

	if seed != "" {
		if err := application.SeedDemo(ctx, seed); err != nil {
			fmt.Fprintf(os.Stderr, "Error: seed %q: %v\n", seed, err)
			return 1
		}
		application.Logger().Info("demo data seeded", "scenario", seed)
	}

	// Run until interrupted.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals

	return 0
}

// printPlugins reports every added plugin and its state.
func printPlugins(application *app.Application) {
	stats := application.Plugins().Stats()
	if len(stats) == 0 {
		fmt.Println("no plugins found")
		return
	}
	for _, s := range stats {
		fmt.Printf("%-20s %-10s v%s\n", s.ID, s.State, s.Version)
	}
	for id, err := range application.Plugins().Errors() {
		fmt.Printf("%-20s error: %v\n", id, err)
	}
}

func scenarioNames() []string {
	scenarios := db.Scenarios()
	names := make([]string, 0, len(scenarios))
	for _, s := range scenarios {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

// Package main implements the partwise binary.
// It prints declared partition DDL, plans migrations against a live
// database, or serves planning over gRPC, depending on the --mode flag.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/partwise/partwise/internal/app"
	"github.com/partwise/partwise/internal/config"
	"github.com/partwise/partwise/internal/partition"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		dataDir     string
		mode        string
		databaseURL string
		grpcAddr    string
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for the manifest and local script storage")
	flag.StringVar(&mode, "mode", "", "Mode: ddl, plan, serve (default plan)")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string")
	flag.StringVar(&grpcAddr, "grpc-addr", "", "gRPC server address")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "partwise - declarative partition planning for PostgreSQL\n\n")
		fmt.Fprintf(os.Stderr, "Usage: partwise [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  partwise --mode ddl --config partwise.yaml\n")
		fmt.Fprintf(os.Stderr, "  partwise --config partwise.yaml --database-url postgres://localhost/app\n")
		fmt.Fprintf(os.Stderr, "  partwise --mode serve --config /etc/partwise/config.yaml\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  PARTWISE_MODE           Mode (ddl, plan, serve)\n")
		fmt.Fprintf(os.Stderr, "  PARTWISE_DATA_DIR       Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  PARTWISE_DATABASE_URL   PostgreSQL connection string\n")
		fmt.Fprintf(os.Stderr, "  PARTWISE_GRPC_ADDR      gRPC server address\n")
		fmt.Fprintf(os.Stderr, "  PARTWISE_STORAGE_TYPE   Script storage type (local, s3)\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("partwise version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(configFile, dataDir, mode, databaseURL, grpcAddr)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switch cfg.Mode {
	case config.ModeDDL:
		cfg.Resolve()
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Invalid configuration: %v", err)
		}
		if err := writeDDL(os.Stdout, cfg); err != nil {
			log.Fatalf("Failed to render DDL: %v", err)
		}

	case config.ModePlan:
		application, err := app.New(cfg)
		if err != nil {
			log.Fatalf("Failed to create application: %v", err)
		}
		code := runPlan(ctx, application, os.Stdout)
		application.Close()
		os.Exit(code)

	default:
		serve(ctx, cfg)
	}
}

// serve runs the gRPC plan service until a shutdown signal arrives.
func serve(ctx context.Context, cfg *config.Config) {
	printBanner(cfg)

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	if err := application.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	if err := application.WaitForShutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
		os.Exit(1)
	}
}

// runPlan plans the configured tables and prints the script. It returns the
// process exit code: 0 when the plan applies in place, 2 when a table must
// be rebuilt, 1 on failure.
func runPlan(ctx context.Context, application *app.App, out io.Writer) int {
	plan, objectPath, err := application.Plan(ctx)
	if plan != nil {
		fmt.Fprint(out, plan.Script())
	}
	if err != nil {
		log.Printf("Plan failed: %v", err)
		return 1
	}

	log.Printf("Plan %s published to %s", plan.ID, objectPath)
	if rebuilds := plan.Rebuilds(); len(rebuilds) > 0 {
		log.Printf("[WARN] %d tables need a rebuild: %v", len(rebuilds), rebuilds)
		return 2
	}
	return 0
}

// writeDDL writes the PARTITION BY clause and the partition DDL of every
// configured table.
func writeDDL(w io.Writer, cfg *config.Config) error {
	specs, err := cfg.TableSpecs()
	if err != nil {
		return err
	}
	for i, spec := range specs {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "-- %s\n%s\n", spec.Table, spec.Desired.PartitionByClause()); err != nil {
			return err
		}
		if err := partition.WriteCreateStatements(w, spec.Table, spec.Desired); err != nil {
			return err
		}
	}
	return nil
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(configFile, dataDir, mode, databaseURL, grpcAddr string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	// Start with defaults or load from file
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	// Apply environment variables
	config.LoadFromEnv(cfg)

	// Apply command line flags (highest priority)
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if mode != "" {
		cfg.Mode = config.Mode(mode)
	}
	if databaseURL != "" {
		cfg.Database.URL = databaseURL
	}
	if grpcAddr != "" {
		cfg.GRPC.Addr = grpcAddr
	}

	return cfg, nil
}

// printBanner prints the startup banner with configuration summary.
func printBanner(cfg *config.Config) {
	log.Printf("partwise %s", version)
	log.Printf("Configuration:")
	log.Printf("  Mode:     %s", cfg.Mode)
	log.Printf("  Data Dir: %s", cfg.DataDir)
	log.Printf("  Storage:  %s", cfg.Storage.Type)
	log.Printf("  Tables:   %d declared", len(cfg.Tables))
	if cfg.GRPC.Enabled {
		log.Printf("  gRPC:     %s", cfg.GRPC.Addr)
	}
}

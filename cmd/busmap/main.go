package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gogpu/gg"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"github.com/verumIgnis/busmapgen/internal/config"
	"github.com/verumIgnis/busmapgen/internal/db"
	"github.com/verumIgnis/busmapgen/internal/filter"
	"github.com/verumIgnis/busmapgen/internal/job"
	"github.com/verumIgnis/busmapgen/internal/source"
)

func main() {
	// Load base .env first, then .env.local (which overrides for local development)
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	cfg := config.Load()

	preset := flag.String("preset", "", "Render a named bounding box preset from the settings file")
	settingsPath := flag.String("settings", cfg.SettingsPath, "Path to the YAML render settings")
	outDir := flag.String("out", cfg.MapsDir, "Directory the numbered PNG is written to")
	listPresets := flag.Bool("list-presets", false, "Print the preset names and exit")
	flag.Parse()

	if cfg.LogLevel == "debug" {
		gg.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	settings, loaded, err := config.LoadSettings(*settingsPath)
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}
	if !loaded {
		log.Printf("No settings file at %s, using built-in defaults", *settingsPath)
	}

	if *listPresets {
		for _, name := range settings.PresetNames() {
			fmt.Printf("%-12s %v\n", name, settings.Presets[name])
		}
		return
	}

	if *preset != "" {
		if err := settings.UsePreset(*preset); err != nil {
			log.Fatal(err)
		}
	}
	if err := settings.Validate(); err != nil {
		log.Fatalf("Invalid settings:\n%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Println("Checking data files...")
	if err := source.EnsureDataFiles(ctx, cfg, source.NewHTTPClient()); err != nil {
		log.Printf("Warning: data refresh failed: %v", err)
	}

	colors, err := source.LoadOperatorColors(cfg.OperatorColorsCSV)
	if err != nil {
		log.Fatalf("Failed to load operator colours: %v", err)
	}
	cities, err := source.LoadCities(cfg.CitiesCSV)
	if err != nil {
		log.Fatalf("Failed to load cities: %v", err)
	}
	log.Printf("Loaded %d operator colours, %d cities", colors.Len(), len(cities))

	// The local database records runs for every source and serves routes for the
	// sqlite source. A render from CSV still works without it.
	var runs job.RunStore
	local, err := db.Open(ctx, cfg.DatabasePath)
	if err != nil {
		if cfg.RouteSource == config.SourceSQLite {
			log.Fatalf("Failed to open database: %v", err)
		}
		log.Printf("Warning: run history disabled: %v", err)
		local = nil
	} else {
		defer local.Close()
		runs = local
	}

	routes, release, err := job.OpenRoutes(ctx, cfg, local)
	if err != nil {
		log.Fatalf("Failed to open route source: %v", err)
	}
	defer release()

	var bar *progressbar.ProgressBar
	renderer := job.NewRenderer(routes, runs, colors, cities, *outDir)
	report, err := renderer.Render(ctx, job.Request{
		Settings: settings,
		Preset:   *preset,
		Progress: func(done, total int, last filter.Reason) {
			if bar == nil {
				bar = progressbar.Default(int64(total), "Drawing routes")
			}
			bar.Set(done)
		},
	})
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		log.Fatalf("Render failed: %v", err)
	}

	fmt.Println(formatSummary(report))
}

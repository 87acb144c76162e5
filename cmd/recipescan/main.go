package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/zombor/recipescan/internal/capture"
	"github.com/zombor/recipescan/internal/ocr"
	"github.com/zombor/recipescan/internal/ocr/gemini"
	"github.com/zombor/recipescan/internal/ocr/tesseract"
	"github.com/zombor/recipescan/internal/recipe"
	"github.com/zombor/recipescan/internal/settings"
	"github.com/zombor/recipescan/internal/structuring"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("recipescan")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "recipes.db", "Database file path")
		settingsPath   = fs.StringLong("settings", "recipescan.yaml", "AI provider settings file")
		aiProvider     = fs.StringLong("ai-provider", "", "AI provider: google, openai, claude or grok (overrides settings file)")
		aiKey          = fs.StringLong("ai-key", "", "AI provider API key (overrides settings file)")
		aiModel        = fs.StringLong("ai-model", "", "AI model name, empty for the provider default")
		saveSettings   = fs.BoolLong("save-settings", "Write the effective AI provider settings back to the settings file")
		aiPerMinute    = fs.IntLong("ai-rate", 0, "Maximum AI requests per minute, 0 for unlimited")
		ocrEngine      = fs.StringLong("ocr", "tesseract", "OCR engine: 'tesseract' or 'gemini'")
		ocrLanguages   = fs.StringLong("ocr-lang", "eng", "Tesseract languages, joined with '+'")
		geminiOCRKey   = fs.StringLong("gemini-ocr-key", "", "Gemini API key for OCR (defaults to the AI key when the provider is google)")
		geminiOCRModel = fs.StringLong("gemini-ocr-model", gemini.DefaultModel, "Gemini model used for OCR")
		maxImageBytes  = fs.IntLong("max-image-bytes", capture.DefaultMaxBytes, "Byte budget for each normalized image")
		maxImageSide   = fs.IntLong("max-image-dimension", capture.DefaultMaxDimension, "Longest side of each normalized image in pixels")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel       = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECIPESCAN"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Resolve AI provider settings
	providerCfg, err := settings.Load(*settingsPath)
	if err != nil {
		slog.Error("Failed to load settings", "path", *settingsPath, "error", err)
		os.Exit(1)
	}
	if *aiProvider != "" {
		if providerCfg.Provider, err = structuring.ParseProvider(*aiProvider); err != nil {
			slog.Error("Invalid AI provider", "provider", *aiProvider, "error", err)
			os.Exit(1)
		}
	}
	if *aiKey != "" {
		providerCfg.APIKey = *aiKey
	}
	if *aiModel != "" {
		providerCfg.ModelName = *aiModel
	}
	if *saveSettings {
		if err := settings.Save(*settingsPath, providerCfg); err != nil {
			slog.Error("Failed to save settings", "error", err)
			os.Exit(1)
		}
		slog.Info("Saved settings", "path", *settingsPath)
	}
	if err := providerCfg.Validate(); err != nil {
		slog.Warn("AI structuring is not configured; scans will fail until it is", "error", err)
	}

	// Initialize OCR engine
	var capability ocr.Capability
	switch *ocrEngine {
	case "tesseract":
		slog.Info("Using Tesseract OCR", "languages", *ocrLanguages)
		capability = tesseract.New(strings.Split(*ocrLanguages, "+")...)
	case "gemini":
		key := *geminiOCRKey
		if key == "" && providerCfg.Provider == structuring.GoogleAI {
			key = providerCfg.APIKey
		}
		slog.Info("Using Gemini OCR", "model", *geminiOCRModel)
		capability, err = gemini.New(key, *geminiOCRModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini OCR", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid OCR engine", "engine", *ocrEngine, "valid", "tesseract or gemini")
		os.Exit(1)
	}

	// Initialize database
	slog.Info("Opening database...", "path", *dbPath)
	db, err := recipe.OpenBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	normalizer := capture.NewNormalizer(
		capture.WithMaxBytes(*maxImageBytes),
		capture.WithMaxDimension(*maxImageSide),
		capture.WithLogger(logger),
	)
	recipeService := recipe.NewService(
		db,
		normalizer,
		ocr.NewAggregator(capability, logger),
		structuring.NewGateway(structuring.WithLogger(logger)),
		providerCfg,
	)

	var opts []recipe.ServerOption
	if *aiPerMinute > 0 {
		opts = append(opts, recipe.WithAILimiter(rate.NewLimiter(rate.Every(time.Minute/time.Duration(*aiPerMinute)), *aiPerMinute)))
	}
	basicAuth := recipe.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := recipe.NewServer(recipeService, basicAuth, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	addr := fmt.Sprintf(":%d", *port)
	g.Go(func() error {
		return server.Run(gctx, addr)
	})

	// Wait for interrupt signal
	g.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			slog.Info("Shutting down...", "signal", sig.String())
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	slog.Info("Server started",
		"address", fmt.Sprintf("http://localhost%s", addr),
		"version", version,
		"ai_provider", providerCfg.Provider,
		"ai_model", providerCfg.Model(),
	)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	if err := g.Wait(); err != nil {
		slog.Error("Server error", "error", err)
		db.Close()
		os.Exit(1)
	}
}

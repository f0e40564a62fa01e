package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"google.golang.org/api/option"

	"github.com/zombor/receipt-extractor/internal/receipt"
	"github.com/zombor/receipt-extractor/internal/scanning"
)

var version = "dev"

type config struct {
	port         *int
	dbPath       *string
	storagePath  *string
	generator    *string
	geminiKey    *string
	geminiModel  *string
	ollamaURL    *string
	ollamaModel  *string
	openAIKey    *string
	openAIModel  *string
	openAIURL    *string
	ocr          *string
	visionKey    *string
	visionURL    *string
	preferOCR    *bool
	environment  *string
	placeholder  *bool
	batchDelayMS *int
	authUser     *string
	authPass     *string
	logFormat    *string
	logLevel     *string
	extractPath  *string
	showVersion  *bool
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A missing .env file is fine
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error: loading .env: %v\n", err)
		os.Exit(1)
	}

	fs := ff.NewFlagSet("receipt-extractor")
	cfg := config{
		port:         fs.IntLong("port", 8080, "HTTP server port"),
		dbPath:       fs.StringLong("db", "receipts.db", "Database file path"),
		storagePath:  fs.StringLong("storage", "./receipts", "Storage directory path"),
		generator:    fs.StringLong("generator", "gemini", "Generative model: 'gemini', 'ollama', 'openai' or 'none'"),
		geminiKey:    fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)"),
		geminiModel:  fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name"),
		ollamaURL:    fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL"),
		ollamaModel:  fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl)"),
		openAIKey:    fs.StringLong("openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)"),
		openAIModel:  fs.StringLong("openai-model", "gpt-4o", "OpenAI model name"),
		openAIURL:    fs.StringLong("openai-url", "", "OpenAI-compatible API base URL (optional)"),
		ocr:          fs.StringLong("ocr", "vision", "OCR fallback: 'vision', 'tesseract' or 'none'"),
		visionKey:    fs.StringLong("vision-key", "", "Google Cloud Vision API key (or set GOOGLE_VISION_API_KEY env var)"),
		visionURL:    fs.StringLong("vision-endpoint", "", "Cloud Vision endpoint override (optional)"),
		preferOCR:    fs.BoolLong("prefer-ocr", "Run OCR before the generative model"),
		environment:  fs.StringLong("environment", "development", "Deployment environment: 'development' or 'production'"),
		placeholder:  fs.BoolLong("dev-placeholder", "Return placeholder data when every provider fails (development only)"),
		batchDelayMS: fs.IntLong("batch-delay-ms", 1000, "Minimum delay between engine calls in a batch upload"),
		authUser:     fs.StringLong("auth-user", "", "Basic auth username (optional)"),
		authPass:     fs.StringLong("auth-pass", "", "Basic auth password (optional)"),
		logFormat:    fs.StringLong("log-format", "text", "Log format: 'text' or 'json'"),
		logLevel:     fs.StringLong("log-level", "info", "Log level: debug, info, warn or error"),
		extractPath:  fs.StringLong("extract", "", "Extract a single image file, print the result as JSON and exit"),
		showVersion:  fs.BoolLong("version", "Show version information"),
	}

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_EXTRACTOR"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *cfg.showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := setupLogging(os.Stderr, *cfg.logFormat, *cfg.logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

// setupLogging installs the default slog handler
func setupLogging(w io.Writer, format, level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "text":
		slog.SetDefault(slog.New(slog.NewTextHandler(w, opts)))
	case "json":
		slog.SetDefault(slog.New(slog.NewJSONHandler(w, opts)))
	default:
		return fmt.Errorf("invalid log format %q (valid: text, json)", format)
	}
	return nil
}

func run(cfg config) error {
	if *cfg.placeholder && *cfg.environment == "production" {
		return errors.New("--dev-placeholder cannot be used in production")
	}

	generator, err := newGenerator(cfg)
	if err != nil {
		return err
	}
	if generator != nil {
		defer generator.Close()
	}

	recognizer, err := newRecognizer(cfg)
	if err != nil {
		return err
	}
	if recognizer != nil {
		defer recognizer.Close()
	}

	if generator == nil && recognizer == nil && !*cfg.placeholder {
		slog.Warn("No generative model or OCR configured; every extraction will be empty")
	}

	processor := scanning.NewProcessor(generator, recognizer, scanning.ProcessorConfig{
		AllowPlaceholder: *cfg.placeholder,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *cfg.extractPath != "" {
		return extractFile(ctx, processor, *cfg.extractPath, !*cfg.preferOCR, os.Stdout)
	}

	slog.Info("Initializing database...")
	db, err := receipt.NewBoltDB(*cfg.dbPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	slog.Info("Initializing storage...")
	store, err := receipt.NewLocalStorage(*cfg.storagePath)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	receiptService := receipt.NewService(db, processor, store, receipt.ServiceConfig{
		PreferGenerative: !*cfg.preferOCR,
		BatchDelay:       time.Duration(*cfg.batchDelayMS) * time.Millisecond,
	})

	basicAuth := receipt.BasicAuth{
		Username: *cfg.authUser,
		Password: *cfg.authPass,
	}
	server := receipt.NewServer(receiptService, basicAuth)

	if *cfg.authUser != "" || *cfg.authPass != "" {
		slog.Info("Basic auth enabled", "user", *cfg.authUser)
	}

	addr := fmt.Sprintf(":%d", *cfg.port)
	slog.Info("Server starting", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if err := server.Start(ctx, addr); err != nil {
		return fmt.Errorf("serving: %w", err)
	}

	slog.Info("Shutting down...")
	return nil
}

// newGenerator returns nil when no generative model is configured
func newGenerator(cfg config) (scanning.Generator, error) {
	switch *cfg.generator {
	case "gemini":
		apiKey := *cfg.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
		}
		slog.Info("Initializing Gemini generator...", "model", *cfg.geminiModel)
		g, err := scanning.NewGemini(apiKey, *cfg.geminiModel)
		if err != nil {
			return nil, fmt.Errorf("initializing gemini: %w", err)
		}
		return g, nil
	case "ollama":
		slog.Info("Initializing Ollama generator...", "url", *cfg.ollamaURL, "model", *cfg.ollamaModel)
		o, err := scanning.NewOllama(*cfg.ollamaURL, *cfg.ollamaModel)
		if err != nil {
			return nil, fmt.Errorf("initializing ollama: %w", err)
		}
		return o, nil
	case "openai":
		apiKey := *cfg.openAIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		slog.Info("Initializing OpenAI generator...", "model", *cfg.openAIModel)
		o, err := scanning.NewOpenAI(apiKey, *cfg.openAIModel, *cfg.openAIURL)
		if err != nil {
			return nil, fmt.Errorf("initializing openai: %w", err)
		}
		return o, nil
	case "none":
		return nil, nil
	}
	return nil, fmt.Errorf("invalid generator %q (valid: gemini, ollama, openai, none)", *cfg.generator)
}

// newRecognizer returns nil when OCR is disabled
func newRecognizer(cfg config) (scanning.TextRecognizer, error) {
	switch *cfg.ocr {
	case "vision":
		apiKey := *cfg.visionKey
		if apiKey == "" {
			apiKey = os.Getenv("GOOGLE_VISION_API_KEY")
		}
		var opts []option.ClientOption
		if *cfg.visionURL != "" {
			opts = append(opts, option.WithEndpoint(*cfg.visionURL))
		}
		slog.Info("Initializing Cloud Vision OCR...")
		v, err := scanning.NewCloudVision(apiKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("initializing cloud vision: %w", err)
		}
		return v, nil
	case "tesseract":
		slog.Info("Initializing Tesseract OCR...")
		return newLocalRecognizer()
	case "none":
		return nil, nil
	}
	return nil, fmt.Errorf("invalid ocr %q (valid: vision, tesseract, none)", *cfg.ocr)
}

// extractFile runs the engine on one file and writes the result as JSON
func extractFile(ctx context.Context, processor *scanning.Processor, path string, preferGenerative bool, w io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	result := processor.ProcessReceipt(ctx, data, contentType, preferGenerative)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return nil
}

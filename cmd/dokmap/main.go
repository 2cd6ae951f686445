package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/dokmap/dokmap/internal/cluster"
	"github.com/dokmap/dokmap/internal/config"
	"github.com/dokmap/dokmap/internal/detect"
	"github.com/dokmap/dokmap/internal/docstore"
	"github.com/dokmap/dokmap/internal/export"
	"github.com/dokmap/dokmap/internal/extract"
	"github.com/dokmap/dokmap/internal/logger"
	"github.com/dokmap/dokmap/internal/mcp"
	"github.com/dokmap/dokmap/internal/pdfsource"
	"github.com/dokmap/dokmap/internal/pipeline"
	"github.com/dokmap/dokmap/internal/template"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// services bundles everything main wires together.
type services struct {
	log      logger.Logger
	docs     *docstore.Store
	tpls     *template.Store
	pipeline *pipeline.Pipeline
	exporter *export.Service
}

// buildServices constructs the stores and engines from the configuration.
// The OCR tools are optional at startup; a missing executable only fails
// the documents that actually need recognition.
func buildServices(cfg *config.Config) (*services, error) {
	lg := logger.NewLogger(os.Stderr, logger.ParseLevel(cfg.LogLevel))

	docs, err := docstore.NewStore(cfg.DocumentStorePath(), lg)
	if err != nil {
		return nil, fmt.Errorf("document store: %w", err)
	}
	tpls, err := template.NewStore(cfg.TemplatesDir(), lg)
	if err != nil {
		return nil, fmt.Errorf("template store: %w", err)
	}

	var rasterizer pdfsource.Rasterizer
	if r, err := pdfsource.NewPopplerRasterizer(); err != nil {
		lg.Warn("page rendering unavailable: %v", err)
	} else {
		rasterizer = r
	}
	var recognizer pdfsource.Recognizer
	if r, err := pdfsource.NewTesseractRecognizer(); err != nil {
		lg.Warn("text recognition unavailable: %v", err)
	} else {
		recognizer = r
	}

	source := pdfsource.NewSource(pdfsource.NewTextLayerReader(cfg.MaxFileSize), rasterizer, recognizer, lg)
	pipe := pipeline.New(docs, tpls, cluster.NewEngine(lg), extract.NewEngine(source, lg), source, lg)

	return &services{
		log:      lg,
		docs:     docs,
		tpls:     tpls,
		pipeline: pipe,
		exporter: export.NewService(docs, lg),
	}, nil
}

// runStdioMode serves MCP over standard I/O until the parent closes stdin.
func runStdioMode(ctx context.Context, server *mcp.Server) {
	if err := server.Run(ctx); err != nil {
		// Only log to stderr in debug mode to avoid protocol interference
		if os.Getenv("DEBUG") != "" {
			log.Printf("Server error: %v", err)
		}
		os.Exit(1)
	}
}

// runBatchMode runs scan, clustering and extraction once and exits.
// Clusters without a usable template are skipped; authoring templates is an
// interactive task for the MCP tool surface.
func runBatchMode(ctx context.Context, cfg *config.Config, svc *services) error {
	paths, err := mcp.ListPDFFiles(cfg.DocumentsDir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no PDF files found in %s", cfg.DocumentsDir)
	}

	progress := func(current, total int, path string) {
		if path != "" {
			svc.log.Info("[%d/%d] %s", current+1, total, path)
		}
	}

	scanReport, err := svc.pipeline.Scan(ctx, paths, progress)
	if err != nil {
		return err
	}
	svc.log.Info("scanned %d of %d documents", scanReport.Scanned, len(paths))
	for _, failure := range scanReport.Failures {
		svc.log.Warn("skipped %s: %s", failure.Path, failure.UserMessage)
	}

	assignment, err := svc.pipeline.ClusterDocuments(ctx, 0)
	if err != nil {
		return err
	}

	for clusterID := range assignment {
		tpl := svc.tpls.Get(clusterID)
		if tpl == nil || tpl.IsEmpty() {
			svc.log.Info("cluster %s has no template yet, skipping extraction", clusterID)
			continue
		}

		report, err := svc.pipeline.ExtractCluster(ctx, clusterID, progress)
		if err != nil {
			return err
		}
		svc.log.Info("cluster %s: extracted %d documents, %d failures",
			clusterID, report.Extracted, len(report.Failures))
		for _, failure := range report.Failures {
			svc.log.Warn("failed %s: %s", failure.Path, failure.UserMessage)
		}
	}
	return nil
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion()
			return
		}
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set version if it was provided during build
	if version != "dev" {
		cfg.Version = version
	}

	svc, err := buildServices(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	// Cancel on SIGINT/SIGTERM; both modes honor the context between
	// documents.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		sig := <-signalCh
		svc.log.Info("received signal %s, shutting down", sig)
		cancel()
	}()

	if cfg.IsBatchMode() {
		if err := runBatchMode(ctx, cfg, svc); err != nil {
			svc.log.Error("batch run failed: %v", err)
			os.Exit(1)
		}
		return
	}

	server, err := mcp.NewServer(cfg, svc.pipeline, detect.NewDetector(), svc.exporter, svc.docs, svc.tpls, svc.log)
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}
	runStdioMode(ctx, server)
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("dokmap\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Printf("Built with: %s\n", runtime.Version())
}

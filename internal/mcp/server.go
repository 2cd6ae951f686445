package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dokmap/dokmap/internal/config"
	"github.com/dokmap/dokmap/internal/descriptions"
	"github.com/dokmap/dokmap/internal/detect"
	"github.com/dokmap/dokmap/internal/docstore"
	"github.com/dokmap/dokmap/internal/export"
	"github.com/dokmap/dokmap/internal/extract"
	"github.com/dokmap/dokmap/internal/logger"
	"github.com/dokmap/dokmap/internal/pipeline"
	"github.com/dokmap/dokmap/internal/template"
)

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	pipeline  *pipeline.Pipeline
	detector  *detect.Detector
	exporter  *export.Service
	docs      *docstore.Store
	templates *template.Store
	mcpServer *server.MCPServer
	log       logger.Logger
}

// NewServer creates a new MCP server instance
func NewServer(
	cfg *config.Config,
	pipe *pipeline.Pipeline,
	detector *detect.Detector,
	exporter *export.Service,
	docs *docstore.Store,
	templates *template.Store,
	log logger.Logger,
) (*Server, error) {
	if pipe == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}
	if docs == nil {
		return nil, fmt.Errorf("document store cannot be nil")
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false), // We don't support dynamic tool capabilities
	)

	s := &Server{
		config:    cfg,
		pipeline:  pipe,
		detector:  detector,
		exporter:  exporter,
		docs:      docs,
		templates: templates,
		mcpServer: mcpServer,
		log:       log,
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	scanTool := mcp.NewTool(
		"scan_documents",
		mcp.WithDescription(descriptions.ScanDocumentsDescription),
		mcp.WithString("directory",
			mcp.Description("Directory to scan for PDF files (uses the configured directory if empty)"),
		),
	)
	s.mcpServer.AddTool(scanTool, s.handleScanDocuments)

	clusterTool := mcp.NewTool(
		"cluster_documents",
		mcp.WithDescription(descriptions.ClusterDocumentsDescription),
		mcp.WithNumber("num_clusters",
			mcp.Description("Number of clusters to form (omit or 0 to derive it from document similarity)"),
		),
	)
	s.mcpServer.AddTool(clusterTool, s.handleClusterDocuments)

	detectTool := mcp.NewTool(
		"detect_fields",
		mcp.WithDescription(descriptions.DetectFieldsDescription),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Text snippet or multi-line block to classify"),
		),
		mcp.WithString("context",
			mcp.Description("Nearby label text, improves classification of a single value"),
		),
	)
	s.mcpServer.AddTool(detectTool, s.handleDetectFields)

	extractDocTool := mcp.NewTool(
		"extract_document",
		mcp.WithDescription(descriptions.ExtractDocumentDescription),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the scanned PDF document"),
		),
	)
	s.mcpServer.AddTool(extractDocTool, s.handleExtractDocument)

	extractClusterTool := mcp.NewTool(
		"extract_cluster",
		mcp.WithDescription(descriptions.ExtractClusterDescription),
		mcp.WithString("cluster_id",
			mcp.Required(),
			mcp.Description("Cluster whose template is applied to every member"),
		),
	)
	s.mcpServer.AddTool(extractClusterTool, s.handleExtractCluster)

	exportTool := mcp.NewTool(
		"export_cluster",
		mcp.WithDescription(descriptions.ExportClusterDescription),
		mcp.WithString("cluster_id",
			mcp.Required(),
			mcp.Description("Cluster to export"),
		),
		mcp.WithString("output",
			mcp.Required(),
			mcp.Description("Output file path; the extension (.xlsx, .csv, .json) selects the format"),
		),
	)
	s.mcpServer.AddTool(exportTool, s.handleExportCluster)

	statusTool := mcp.NewTool(
		"dokmap_status",
		mcp.WithDescription(descriptions.StatusDescription),
	)
	s.mcpServer.AddTool(statusTool, s.handleStatus)
}

// Handler functions
func (s *Server) handleScanDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	directory := s.config.DocumentsDir // default
	if dir, ok := args["directory"].(string); ok && dir != "" {
		directory = dir
	}

	paths, err := ListPDFFiles(directory)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(paths) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No PDF files found in directory: %s", directory)), nil
	}

	report, err := s.pipeline.Scan(ctx, paths, nil)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	responseText := fmt.Sprintf("Scan %s complete\n", report.RunID)
	responseText += fmt.Sprintf("Directory: %s\n", directory)
	responseText += fmt.Sprintf("Documents scanned: %d of %d\n", report.Scanned, len(paths))
	responseText += formatFailures(report.Failures)

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleClusterDocuments(ctx context.Context, request mcp.CallToolRequest) (
	*mcp.CallToolResult, error,
) {
	args := request.GetArguments()

	numClusters := 0
	if n, ok := args["num_clusters"].(float64); ok {
		numClusters = int(n)
	}

	assignment, err := s.pipeline.ClusterDocuments(ctx, numClusters)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(assignment) == 0 {
		return mcp.NewToolResultText("No fingerprinted documents to cluster. Run scan_documents first."), nil
	}

	clusterIDs := make([]string, 0, len(assignment))
	for clusterID := range assignment {
		clusterIDs = append(clusterIDs, clusterID)
	}
	sort.Strings(clusterIDs)

	responseText := fmt.Sprintf("Formed %d cluster(s)\n\n", len(assignment))
	for _, clusterID := range clusterIDs {
		responseText += fmt.Sprintf("%s: %d document(s)\n", clusterID, len(assignment[clusterID]))
		if ref := s.docs.ReferenceFor(clusterID); ref != "" {
			responseText += fmt.Sprintf("   Reference: %s\n", ref)
		}
	}

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleDetectFields(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := request.GetArguments()
	contextText := ""
	if c, ok := args["context"].(string); ok {
		contextText = c
	}

	// A single line with explicit context is classified as one value;
	// anything else is scanned line by line.
	var detections []detect.Detection
	if contextText != "" && !strings.Contains(strings.TrimSpace(text), "\n") {
		detection := s.detector.DetectFieldType(text, contextText)
		if detection.FieldType != detect.FieldTypeUnknown {
			detections = append(detections, detection)
		}
	} else {
		detections = s.detector.DetectFieldsInText(text)
	}

	if len(detections) == 0 {
		return mcp.NewToolResultText("No recognizable fields detected."), nil
	}

	responseText := fmt.Sprintf("Detected %d field(s):\n\n", len(detections))
	for i, detection := range detections {
		responseText += fmt.Sprintf("%d. %s (%s confidence)\n", i+1, detection.FieldType, detection.Confidence)
		responseText += fmt.Sprintf("   Value: %s\n", detection.Value)
		responseText += fmt.Sprintf("   Suggested name: %s\n", detect.SuggestFieldName(detection.FieldType))
		if len(detection.ContextKeywords) > 0 {
			responseText += fmt.Sprintf("   Context keywords: %s\n", strings.Join(detection.ContextKeywords, ", "))
		}
	}

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleExtractDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.pipeline.ExtractDocument(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(userFacing(err)), nil
	}

	return mcp.NewToolResultText(formatExtractResult(path, result)), nil
}

func (s *Server) handleExtractCluster(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	clusterID, err := request.RequireString("cluster_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	report, err := s.pipeline.ExtractCluster(ctx, clusterID, nil)
	if err != nil {
		return mcp.NewToolResultError(userFacing(err)), nil
	}

	responseText := fmt.Sprintf("Extraction %s complete\n", report.RunID)
	responseText += fmt.Sprintf("Cluster: %s\n", report.ClusterID)
	responseText += fmt.Sprintf("Documents extracted: %d\n", report.Extracted)
	responseText += formatFailures(report.Failures)

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleExportCluster(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	clusterID, err := request.RequireString("cluster_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	output, err := request.RequireString("output")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	count, err := s.exporter.ExportCluster(clusterID, output)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	responseText := fmt.Sprintf("Exported %d record(s) from %s to %s", count, clusterID, output)
	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documents := s.docs.Documents()

	statusCounts := map[docstore.Status]int{}
	for _, doc := range documents {
		statusCounts[doc.Status]++
	}

	responseText := fmt.Sprintf("%s v%s\n", s.config.ServerName, s.config.Version)
	responseText += fmt.Sprintf("Document directory: %s\n", s.config.DocumentsDir)
	responseText += fmt.Sprintf("Data directory: %s\n\n", s.config.DataDir)

	responseText += fmt.Sprintf("Documents: %d\n", len(documents))
	for _, status := range []docstore.Status{
		docstore.StatusPending, docstore.StatusProcessed, docstore.StatusMapped,
		docstore.StatusReviewed, docstore.StatusError,
	} {
		if statusCounts[status] > 0 {
			responseText += fmt.Sprintf("   %s: %d\n", status, statusCounts[status])
		}
	}

	clusterIDs := s.docs.ClusterIDs()
	responseText += fmt.Sprintf("\nClusters: %d\n", len(clusterIDs))
	for _, clusterID := range clusterIDs {
		members := s.docs.ClusterDocuments(clusterID)
		responseText += fmt.Sprintf("   %s: %d document(s)", clusterID, len(members))
		if ref := s.docs.ReferenceFor(clusterID); ref != "" {
			responseText += fmt.Sprintf(", reference %s", filepath.Base(ref))
		}
		if tpl := s.templates.Get(clusterID); tpl != nil && !tpl.IsEmpty() {
			responseText += fmt.Sprintf(", template with %d field(s) and %d table(s)",
				len(tpl.FieldMappings), len(tpl.TableMappings))
		} else if tpl != nil {
			responseText += ", empty template"
		}
		responseText += "\n"
	}

	return mcp.NewToolResultText(responseText), nil
}

// Formatting helpers

func formatExtractResult(path string, result *extract.Result) string {
	text := fmt.Sprintf("Extracted: %s\n", path)

	fieldNames := make([]string, 0, len(result.Fields))
	for name := range result.Fields {
		fieldNames = append(fieldNames, name)
	}
	sort.Strings(fieldNames)

	text += fmt.Sprintf("Fields: %d\n", len(fieldNames))
	for _, name := range fieldNames {
		text += fmt.Sprintf("   %s: %s\n", name, result.Fields[name])
	}

	tableNames := make([]string, 0, len(result.Tables))
	for name := range result.Tables {
		tableNames = append(tableNames, name)
	}
	sort.Strings(tableNames)

	text += fmt.Sprintf("Tables: %d\n", len(tableNames))
	for _, name := range tableNames {
		text += fmt.Sprintf("   %s: %d row(s)\n", name, len(result.Tables[name]))
	}

	if len(result.Warnings) > 0 {
		text += "\nWarnings:\n"
		for _, warning := range result.Warnings {
			text += fmt.Sprintf("   %s\n", warning)
		}
	}

	return text
}

func formatFailures(failures []pipeline.DocumentFailure) string {
	if len(failures) == 0 {
		return ""
	}
	text := fmt.Sprintf("\nFailures: %d\n", len(failures))
	for i, failure := range failures {
		text += fmt.Sprintf("%d. %s\n", i+1, failure.Path)
		text += fmt.Sprintf("   %s\n", failure.UserMessage)
	}
	return text
}

// userFacing prefers the extraction error's display message over the
// technical one.
func userFacing(err error) string {
	var ee *extract.Error
	if errors.As(err, &ee) {
		return ee.UserMessage()
	}
	return err.Error()
}

// ListPDFFiles returns the full paths of the PDF files directly inside dir,
// sorted by name. Subdirectories are not descended into.
func ListPDFFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot read directory %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Run starts the MCP server over standard I/O.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("starting %s v%s over stdio", s.config.ServerName, s.config.Version)
	s.log.Debug("document directory: %s", s.config.DocumentsDir)

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

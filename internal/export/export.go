// Package export flattens extracted cluster data into tabular records and
// serializes them to XLSX, CSV or JSON. One output row per table row, with
// the document's scalar fields repeated on each; documents without tables
// contribute a single row of fields.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dokmap/dokmap/internal/docstore"
	"github.com/dokmap/dokmap/internal/logger"
)

// Source columns prepended to every record.
const (
	columnSourceFile = "Källfil"
	columnCluster    = "Kluster"
)

// Format selects the serialization of an export.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// FormatForPath derives the format from a file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return FormatXLSX, nil
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported export extension on %s (use .xlsx, .csv or .json)", path)
	}
}

// Service produces exports from the document store.
type Service struct {
	docs *docstore.Store
	log  logger.Logger
}

// NewService creates an export service.
func NewService(docs *docstore.Store, log logger.Logger) *Service {
	return &Service{docs: docs, log: log}
}

// ExportCluster writes one cluster's flattened records to path in the
// format implied by its extension. Returns the number of records written.
// A cluster with no mapped documents is an error, not an empty file.
func (s *Service) ExportCluster(clusterID, path string) (int, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return 0, err
	}

	records, headers := Flatten(clusterID, s.docs.ClusterDocuments(clusterID))
	if len(records) == 0 {
		return 0, fmt.Errorf("cluster %s has no mapped documents to export", clusterID)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("cannot create export file %s: %w", path, err)
	}
	defer f.Close()

	switch format {
	case FormatCSV:
		err = WriteCSV(f, headers, records)
	case FormatJSON:
		err = WriteJSON(f, records)
	case FormatXLSX:
		err = WriteXLSX(f, headers, records)
	}
	if err != nil {
		return 0, err
	}

	s.log.Info("exported %d records from %s to %s", len(records), clusterID, path)
	return len(records), nil
}

// Flatten turns a cluster's documents into records plus a deterministic
// header order: source columns, then field names, then table columns, each
// group sorted. Only mapped or reviewed documents contribute.
func Flatten(clusterID string, docs []*docstore.Document) ([]map[string]string, []string) {
	var records []map[string]string
	fieldNames := map[string]bool{}
	tableColumns := map[string]bool{}

	for _, doc := range docs {
		if doc.Status != docstore.StatusMapped && doc.Status != docstore.StatusReviewed {
			continue
		}
		if doc.ExtractedData == nil {
			continue
		}

		fields := doc.ExtractedData.Fields
		for name := range fields {
			fieldNames[name] = true
		}

		base := func() map[string]string {
			record := map[string]string{
				columnSourceFile: doc.FilePath,
				columnCluster:    clusterID,
			}
			for name, value := range fields {
				record[name] = value
			}
			return record
		}

		if len(doc.ExtractedData.Tables) == 0 {
			records = append(records, base())
			continue
		}

		tableNames := make([]string, 0, len(doc.ExtractedData.Tables))
		for name := range doc.ExtractedData.Tables {
			tableNames = append(tableNames, name)
		}
		sort.Strings(tableNames)

		for _, tableName := range tableNames {
			for _, row := range doc.ExtractedData.Tables[tableName] {
				record := base()
				for column, value := range row {
					record[column] = value
					tableColumns[column] = true
				}
				records = append(records, record)
			}
		}
	}

	headers := []string{columnSourceFile, columnCluster}
	headers = append(headers, sortedKeys(fieldNames)...)
	for _, column := range sortedKeys(tableColumns) {
		if !fieldNames[column] {
			headers = append(headers, column)
		}
	}
	return records, headers
}

// WriteCSV writes records as CSV with a header row.
func WriteCSV(w io.Writer, headers []string, records []map[string]string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("cannot write CSV header: %w", err)
	}
	row := make([]string, len(headers))
	for _, record := range records {
		for i, header := range headers {
			row[i] = record[header]
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("cannot write CSV row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteJSON writes records as an indented JSON array.
func WriteJSON(w io.Writer, records []map[string]string) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(records)
}

// xlsxSheet is the single sheet name used in exported workbooks.
const xlsxSheet = "Data"

// WriteXLSX writes records as an XLSX workbook with one data sheet.
func WriteXLSX(w io.Writer, headers []string, records []map[string]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(xlsxSheet); err != nil {
		return err
	}
	if index, err := f.GetSheetIndex(xlsxSheet); err == nil {
		f.SetActiveSheet(index)
	}
	f.DeleteSheet("Sheet1")

	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(xlsxSheet, cell, header); err != nil {
			return err
		}
	}

	for rowIdx, record := range records {
		for colIdx, header := range headers {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(xlsxSheet, cell, record[header]); err != nil {
				return err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

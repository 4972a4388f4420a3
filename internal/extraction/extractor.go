// Package extraction turns uploaded shipping documents into snapshot
// fields. Text is pulled from xlsx and pdf files locally; the field
// values are then extracted from that text by an LLM.
package extraction

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// Document is one uploaded file to extract text from.
type Document struct {
	Name string
	Data []byte
}

// ExtractText converts a set of documents into one plain-text blob, each
// document introduced by a header line so the LLM can tell them apart.
func ExtractText(documents []Document) (string, error) {
	var builder strings.Builder

	for _, document := range documents {
		text, err := extractDocumentText(document)
		if err != nil {
			return "", fmt.Errorf("extracting text from %s: %w", document.Name, err)
		}

		kind := strings.ToUpper(strings.TrimPrefix(filepath.Ext(document.Name), "."))
		fmt.Fprintf(&builder, "=== Document: %s (%s) ===\n%s\n", document.Name, kind, text)
	}

	return builder.String(), nil
}

func extractDocumentText(document Document) (string, error) {
	switch strings.ToLower(filepath.Ext(document.Name)) {
	case ".xlsx":
		return extractXLSX(document.Data)
	case ".pdf":
		return extractPDF(document.Data)
	case ".txt", ".csv":
		return string(document.Data), nil
	default:
		return "", fmt.Errorf("unsupported document type %q", filepath.Ext(document.Name))
	}
}

func extractXLSX(data []byte) (string, error) {
	workbook, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("opening workbook: %w", err)
	}
	defer workbook.Close()

	var builder strings.Builder

	for _, sheet := range workbook.GetSheetList() {
		rows, err := workbook.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("reading sheet %s: %w", sheet, err)
		}

		fmt.Fprintf(&builder, "=== Sheet: %s ===\n", sheet)
		for _, row := range rows {
			if strings.Trim(strings.Join(row, ""), " ") == "" {
				continue
			}
			builder.WriteString(strings.Join(row, " | "))
			builder.WriteString("\n")
		}
	}

	return builder.String(), nil
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	plainText, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}

	text, err := io.ReadAll(plainText)
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}

	return string(text), nil
}

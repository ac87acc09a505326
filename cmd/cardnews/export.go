package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chiclooc-rgb/card-news-generator/internal/errortypes"
	"github.com/chiclooc-rgb/card-news-generator/internal/genai"
	"github.com/chiclooc-rgb/card-news-generator/internal/orchestrator"
)

// exportName is the file name for a page record, e.g. cardnews_body_2.png.
func exportName(r orchestrator.Record, mime string) string {
	ext := ".png"
	if mime == "image/jpeg" {
		ext = ".jpg"
	}
	return fmt.Sprintf("cardnews_%s_%d%s", strings.ToLower(string(r.PageType)), r.PageIndex+1, ext)
}

// exportRecords decodes every record image into dir. A later record for the
// same page replaces the earlier file.
func exportRecords(dir string, records []orchestrator.Record) ([]string, error) {
	written := make(map[string]bool)
	var files []string

	for _, r := range records {
		mime, data, err := genai.DecodeDataURI(r.URL)
		if err != nil {
			return files, errortypes.ValidationError(err, "record has no inline image").
				WithFields(map[string]interface{}{"label": r.Label, "record_id": r.ID})
		}

		path := filepath.Join(dir, exportName(r, mime))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return files, errortypes.PermissionError(err, "failed to write page image").WithField("path", path)
		}
		if !written[path] {
			written[path] = true
			files = append(files, path)
		}
	}
	return files, nil
}

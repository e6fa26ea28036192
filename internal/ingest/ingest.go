package ingest

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"docquery/internal/errs"
	"docquery/internal/helper"
	"docquery/internal/models"
	"docquery/internal/parser"
)

// LoadDocuments reads every supported file in dir into a Document.
// Files with unsupported extensions are skipped; a supported file
// that fails to parse aborts the whole load. Subdirectories are not
// descended into.
func LoadDocuments(dir string) ([]models.Document, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.KindDirectoryNotFound, "directory %q not found", dir)
		}
		return nil, errs.Wrap(errs.KindDocumentLoad, err, "reading directory %q", dir)
	}
	if !info.IsDir() {
		return nil, errs.New(errs.KindDirectoryNotFound, "%q is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errs.Wrap(errs.KindDocumentLoad, err, "reading directory %q", dir)
	}

	var docs []models.Document
	skipped := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if !parser.Supported(filepath.Ext(entry.Name())) {
			log.Debug().Str("file", path).Msg("Skipping unsupported file type")
			skipped++
			continue
		}

		sections, err := parser.Extract(path)
		if err != nil {
			return nil, errs.Wrap(errs.KindDocumentLoad, err, "parsing %q", path)
		}
		if len(sections) == 0 {
			log.Warn().Str("file", path).Msg("File yielded no text")
			continue
		}

		id, err := helper.GenerateUUID()
		if err != nil {
			return nil, errs.Wrap(errs.KindDocumentLoad, err, "assigning document id")
		}
		docs = append(docs, models.Document{
			ID:       id,
			Path:     path,
			Sections: sections,
			Metadata: map[string]string{"filename": entry.Name()},
		})
	}

	if len(docs) == 0 {
		return nil, errs.New(errs.KindNoDocuments, "no ingestible documents in %q (%d unsupported files skipped)", dir, skipped)
	}

	log.Info().Int("documents", len(docs)).Int("skipped", skipped).Str("dir", dir).Msg("Loaded documents")
	return docs, nil
}

package sifen

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
)

var ErrEmptyBatch = errors.New("sifen: batch contains no documents")

// buildBatchContainer packs signed documents into the zip-then-base64
// container the batch reception operation expects. Entry names are
// positional; the authority correlates results by each document's CDC, not
// by file name.
func buildBatchContainer(docs [][]byte) (string, error) {
	if len(docs) == 0 {
		return "", ErrEmptyBatch
	}

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for i, doc := range docs {
		if len(doc) == 0 {
			return "", fmt.Errorf("sifen: batch document %d is empty", i+1)
		}
		entry, err := w.Create(fmt.Sprintf("doc-%03d.xml", i+1))
		if err != nil {
			return "", fmt.Errorf("sifen: create batch entry: %w", err)
		}
		if _, err := entry.Write(doc); err != nil {
			return "", fmt.Errorf("sifen: write batch entry: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("sifen: close batch container: %w", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

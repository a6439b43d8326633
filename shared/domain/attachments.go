package domain

import (
	"fmt"
	"os"
	"path/filepath"
)

// PendingFile is a file staged for upload, before the server has seen it.
type PendingFile struct {
	FileName string
	MimeType string
	Data     []byte
}

func (f *PendingFile) Size() int64 {
	return int64(len(f.Data))
}

// ReadPendingFile loads a file from disk. The MIME type is left empty for the
// caller to detect.
func ReadPendingFile(path string) (*PendingFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return &PendingFile{FileName: filepath.Base(path), Data: data}, nil
}

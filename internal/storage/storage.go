// Package storage keeps uploaded files (sample attachments, ASR documents)
// in an object store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"stealthcompany.com/labportal/internal/model"
)

// ASR folders
const (
	FolderAttachments = "attachments"
	FolderResults     = "results"
)

var (
	ErrInvalidFolder = errors.New("folder must be attachments or results")
	ErrInvalidName   = errors.New("invalid file name")
)

// FileStore is implemented by MinIO and by an in-memory map for tests
type FileStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (model.FileRef, error)
	List(ctx context.Context, prefix string) ([]model.FileRef, error)
	URL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// cleanName keeps only the base name of an upload
func cleanName(name string) (string, error) {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "" || name == "." || name == "/" || name == ".." {
		return "", ErrInvalidName
	}
	return name, nil
}

// SampleFileKey is where an attachment of a testing sample lives
func SampleFileKey(testingListID, fileName string, at time.Time) (string, error) {
	name, err := cleanName(fileName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("samples/%s/%d-%s", testingListID, at.UTC().UnixMilli(), name), nil
}

// ParseFolder validates an ASR folder name. Empty means attachments.
func ParseFolder(folder string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(folder)) {
	case "", FolderAttachments:
		return FolderAttachments, nil
	case FolderResults:
		return FolderResults, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFolder, folder)
	}
}

// ASRPrefix is the key prefix of one ASR folder
func ASRPrefix(asrNumber, folder string) string {
	return fmt.Sprintf("asr/%s/%s/", asrNumber, folder)
}

// ASRFileKey is where an ASR document lives
func ASRFileKey(asrNumber, folder, fileName string) (string, error) {
	name, err := cleanName(fileName)
	if err != nil {
		return "", err
	}
	return ASRPrefix(asrNumber, folder) + name, nil
}

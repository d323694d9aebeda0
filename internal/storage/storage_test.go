package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFolder(t *testing.T) {
	tests := []struct {
		in        string
		expected  string
		expectErr bool
	}{
		{"", FolderAttachments, false},
		{"Results", FolderResults, false},
		{"attachments", FolderAttachments, false},
		{"../etc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFolder(tt.in)
			if tt.expectErr {
				assert.ErrorIs(t, err, ErrInvalidFolder)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestKeysStripDirectories(t *testing.T) {
	at := time.UnixMilli(1700000000000)

	key, err := SampleFileKey("t-1", "../../secret/report.pdf", at)
	require.NoError(t, err)
	assert.Equal(t, "samples/t-1/1700000000000-report.pdf", key)

	key, err = ASRFileKey("ASR-2610-0001", FolderResults, `C:\docs\final.xlsx`)
	require.NoError(t, err)
	assert.Equal(t, "asr/ASR-2610-0001/results/final.xlsx", key)

	_, err = ASRFileKey("ASR-2610-0001", FolderResults, "  ")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestMemoryPutList(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	ref, err := m.Put(ctx, "asr/A/attachments/a.txt", strings.NewReader("hello"), 5, "text/plain")
	require.NoError(t, err)
	assert.Equal(t, int64(5), ref.Size)
	assert.Equal(t, "a.txt", ref.Name)

	_, err = m.Put(ctx, "asr/A/results/r.txt", strings.NewReader("r"), 1, "text/plain")
	require.NoError(t, err)

	list, err := m.List(ctx, ASRPrefix("A", FolderAttachments))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "asr/A/attachments/a.txt", list[0].Key)

	u, err := m.URL(ctx, "asr/A/attachments/a.txt", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "memory://asr/A/attachments/a.txt", u)
	assert.Equal(t, "hello", string(m.Bytes("asr/A/attachments/a.txt")))
}

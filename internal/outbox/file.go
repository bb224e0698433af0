package outbox

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/matheus3301/sbc/internal/transcript"
)

// describeFile builds the optimistic attachment content for a local file.
// The URL stays empty until the upload is confirmed.
func describeFile(path string) (transcript.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return transcript.File{}, fmt.Errorf("stat attachment: %w", err)
	}
	if !info.Mode().IsRegular() {
		return transcript.File{}, fmt.Errorf("attachment %s is not a regular file", path)
	}
	mt, err := DetectMime(path)
	if err != nil {
		return transcript.File{}, err
	}
	return transcript.File{
		Filename: filepath.Base(path),
		Mime:     mt,
		Size:     info.Size(),
	}, nil
}

// DetectMime guesses a MIME type from the extension, falling back to content
// sniffing.
func DetectMime(path string) (string, error) {
	if mt := mime.TypeByExtension(filepath.Ext(path)); mt != "" {
		return mt, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open attachment: %w", err)
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 512)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("read attachment: %w", err)
	}
	return http.DetectContentType(buf[:n]), nil
}

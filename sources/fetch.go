// sources/fetch.go
package sources

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// DefaultFetchClient is used by Fetch when no client is given.
var DefaultFetchClient = &http.Client{Timeout: 60 * time.Second}

// Fetch downloads one remote export into dir and returns the local path. The file name comes
// from Content-Disposition, else the last URL path segment. The body is written to a temp
// file first and renamed, so discovery never sees a partial download.
func Fetch(ctx context.Context, client *http.Client, rawURL, dir string) (string, error) {
	if client == nil {
		client = DefaultFetchClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid source URL %s: %w", rawURL, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make GET request to %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download file from %s: received status code %d", rawURL, resp.StatusCode)
	}

	name := fetchName(resp, rawURL)
	if name == "" {
		return "", fmt.Errorf("cannot derive a file name for %s", rawURL)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".fetch-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to copy downloaded content from %s: %w", rawURL, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}

	dst := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("failed to move download to %s: %w", dst, err)
	}
	return dst, nil
}

func fetchName(resp *http.Response, rawURL string) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			return cleanName(params["filename"])
		}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return cleanName(path.Base(u.Path))
}

// cleanName keeps only the base name, so a hostile header cannot escape dir.
func cleanName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || strings.HasPrefix(name, ".") {
		return ""
	}
	return name
}

package httpds

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
)

var nameCleaner = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// FileName derives a local file name from rawURL: the last path segment,
// cleaned, when it has an extension, otherwise a hash of the URL with a
// .csv suffix. A .zst suffix survives so the file source decompresses it.
func FileName(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		base := nameCleaner.ReplaceAllString(path.Base(u.Path), "_")
		if ext := path.Ext(base); ext != "" && ext != base {
			return base
		}
	}
	return fmt.Sprintf("%016x.csv", xxh3.HashString(rawURL))
}

// Download saves the body of a GET for rawURL into dir and returns the file
// path. Statuses other than 200 are errors. A partial file is removed.
func (c *Client) Download(ctx context.Context, rawURL, dir string) (string, error) {
	start := time.Now()
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("httpds: GET %s: %s", rawURL, resp.Status)
	}

	p := filepath.Join(dir, FileName(rawURL))
	f, err := os.Create(p)
	if err != nil {
		return "", fmt.Errorf("httpds: %w", err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(p)
		return "", fmt.Errorf("httpds: download %s: %w", rawURL, err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		os.Remove(p)
		return "", fmt.Errorf("httpds: download %s: got %d of %d bytes", rawURL, n, resp.ContentLength)
	}
	log.Printf("httpds: downloaded %s bytes=%d elapsed=%s", strings.TrimSpace(rawURL), n, time.Since(start).Truncate(time.Millisecond))
	return p, nil
}

package hostinfo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// ErrNotFound is returned when a download URL answers 404.
var ErrNotFound = errors.New("file not found on server")

// progressInterval is how many bytes pass between download progress lines.
const progressInterval = 8 << 20

// countingReader logs how much of a download has arrived.
type countingReader struct {
	r      io.Reader
	name   string
	size   int64
	read   uint64
	logged uint64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += uint64(n)
	if c.read-c.logged >= progressInterval {
		c.logged = c.read
		if c.size > 0 {
			log.Printf("[FETCH] %s: %s of %s", c.name, humanize.Bytes(c.read), humanize.Bytes(uint64(c.size)))
		} else {
			log.Printf("[FETCH] %s: %s", c.name, humanize.Bytes(c.read))
		}
	}
	return n, err
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// CacheFileName is the local name used for url inside a cache directory.
func CacheFileName(url, prefix string) string {
	name := url[strings.LastIndex(url, "/")+1:]
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		name = "index"
	}
	if prefix != "" {
		name = prefix + "_" + name
	}
	return name
}

// Fetch returns a local path for src. Local paths are returned unchanged; URLs
// are downloaded into cacheDir once and reused afterwards.
func Fetch(ctx context.Context, src, cacheDir, prefix string) (string, error) {
	if !isURL(src) {
		return src, nil
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache dir: %w", err)
	}
	path := filepath.Join(cacheDir, CacheFileName(src, prefix))
	if _, err := os.Stat(path); err == nil {
		log.Printf("[FETCH] Using cached file: %s", path)
		return path, nil
	}
	log.Printf("[FETCH] Downloading %s", src)
	if err := DownloadFile(ctx, src, path); err != nil {
		return "", err
	}
	return path, nil
}

// DownloadFile saves url at path. The body is streamed into a sibling
// ".part" file that only replaces path once it is complete.
func DownloadFile(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", url, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("get %s: %w", url, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("get %s: unexpected status %s", url, resp.Status)
	}

	part, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".part-*")
	if err != nil {
		return fmt.Errorf("create partial download: %w", err)
	}
	body := &countingReader{r: resp.Body, name: filepath.Base(path), size: resp.ContentLength}
	n, copyErr := io.Copy(part, body)
	closeErr := part.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(part.Name())
		return fmt.Errorf("download %s: %w", url, err)
	}
	if err := os.Rename(part.Name(), path); err != nil {
		os.Remove(part.Name())
		return err
	}
	log.Printf("[FETCH] Saved %s (%s)", path, humanize.Bytes(uint64(n)))
	return nil
}

// ImportCloudRanges downloads (or reuses) the published ranges of each named
// provider and stores them as labels.
func ImportCloudRanges(ctx context.Context, store *Store, providers []string, cacheDir string) error {
	for _, name := range providers {
		name = strings.ToLower(strings.TrimSpace(name))
		src, ok := CloudRanges[name]
		if !ok {
			return fmt.Errorf("unknown cloud provider %q (known: %s)", name, strings.Join(CloudProviders(), ", "))
		}
		path, err := Fetch(ctx, src.URL, cacheDir, name)
		if err != nil {
			return fmt.Errorf("fetch %s ranges: %w", name, err)
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		prefixes, err := src.Parse(f)
		f.Close()
		if err != nil {
			return err
		}
		if err := store.SetLabels(CloudLabels(prefixes)); err != nil {
			return fmt.Errorf("store %s ranges: %w", name, err)
		}
		log.Printf("[CLOUD] Imported %d %s prefixes", len(prefixes), name)
	}
	return nil
}

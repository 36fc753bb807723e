package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/verumIgnis/busmapgen/internal/config"
)

// UserAgent is sent with every download
const UserAgent = "Mozilla/5.0 (compatible; verumIgnis-busmap/1.0)"

// Manifest records when the downloaded data files were last refreshed
type Manifest struct {
	UpdatedAt string            `json:"updated_at"`
	Sources   map[string]string `json:"sources,omitempty"` // file name -> URL
}

// NewHTTPClient returns the client used for data downloads
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}

// EnsureDataFiles downloads the operator colour and city tables when either is
// missing or the manifest is older than DataRefreshDays. Download failures are
// logged; an existing stale file is kept in that case.
func EnsureDataFiles(ctx context.Context, cfg *config.Config, client *http.Client) error {
	manifestPath := filepath.Join(cfg.DataDir, "manifest.json")
	targets := map[string]string{
		cfg.OperatorColorsCSV: cfg.OperatorColorsURL,
		cfg.CitiesCSV:         cfg.CitiesURL,
	}

	stale := isStaleOrMissing(manifestPath, cfg.DataRefreshDays)
	var todo []string
	for path := range targets {
		if stale || !fileExists(path) {
			todo = append(todo, path)
		}
	}
	if len(todo) == 0 {
		log.Println("Data files are fresh, skipping refresh")
		return nil
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return err
	}

	manifest := Manifest{Sources: make(map[string]string)}
	if !stale {
		// A missing file is fetched into the current period; the clock is not reset
		if current, err := readManifest(manifestPath); err == nil {
			manifest = current
			if manifest.Sources == nil {
				manifest.Sources = make(map[string]string)
			}
		}
	}
	failed := 0
	for _, path := range todo {
		url := targets[path]
		log.Printf("Downloading %s...", url)
		if err := Download(ctx, client, url, path); err != nil {
			log.Printf("Failed to download %s: %v", url, err)
			failed++
			continue
		}
		manifest.Sources[filepath.Base(path)] = url
	}

	// A failed download leaves the manifest untouched
	if failed > 0 {
		return nil
	}
	if stale {
		manifest.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(manifestPath, data, 0644)
}

// Download fetches url into path, replacing the file only after a complete download
func Download(ctx context.Context, client *http.Client, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readManifest(path string) (Manifest, error) {
	var manifest Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return manifest, err
	}
	err = json.Unmarshal(data, &manifest)
	return manifest, err
}

func isStaleOrMissing(manifestPath string, maxAgeDays int) bool {
	manifest, err := readManifest(manifestPath)
	if err != nil {
		// Missing, unreadable or corrupt
		return true
	}

	updatedAt, err := time.Parse(time.RFC3339, manifest.UpdatedAt)
	if err != nil {
		return true
	}

	maxAge := time.Duration(maxAgeDays) * 24 * time.Hour
	return time.Since(updatedAt) > maxAge
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

package dataset

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/noot-app/feed-formulation-mcp-server/internal/config"
)

//go:embed seed/*.csv
var seedFS embed.FS

// Metadata holds information about one downloaded catalog file
type Metadata struct {
	SHA256       string    `json:"sha256"`
	DownloadedAt time.Time `json:"downloaded_at"`
	ETag         string    `json:"etag,omitempty"`
	Size         int64     `json:"size"`
	Seeded       bool      `json:"seeded,omitempty"`
}

// Source is one catalog file the manager keeps available
type Source struct {
	Name string
	Path string
	// URL is optional; without it a missing file is written from the embedded seed
	URL  string
	Seed string
}

// Manager keeps the catalog CSV files present and fresh
type Manager struct {
	sources      []Source
	metadataPath string
	lockPath     string
	client       *http.Client
	waitInterval time.Duration
	waitTimeout  time.Duration
	log          *slog.Logger
	config       *config.Config
}

// NewManager creates a manager for the ingredient and livestock profile files
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	return &Manager{
		sources: []Source{
			{Name: "ingredients", Path: cfg.IngredientsPath, URL: cfg.IngredientsURL, Seed: "seed/ingredients.csv"},
			{Name: "livestock_profiles", Path: cfg.ProfilesPath, URL: cfg.ProfilesURL, Seed: "seed/livestock_profiles.csv"},
		},
		metadataPath: cfg.MetadataPath,
		lockPath:     cfg.LockFile,
		client:       &http.Client{Timeout: 5 * time.Minute},
		waitInterval: 2 * time.Second,
		waitTimeout:  10 * time.Minute,
		log:          logger,
		config:       cfg,
	}
}

// EnsureCatalog makes every catalog file available and, where a URL is
// configured, up to date with the remote copy
func (m *Manager) EnsureCatalog(ctx context.Context) error {
	start := time.Now()

	var stale []Source
	for _, src := range m.sources {
		m.log.Info("Ensuring catalog file is available", "source", src.Name, "path", src.Path)

		needed, err := m.needsDownload(ctx, src)
		if err != nil {
			return err
		}
		if needed {
			stale = append(stale, src)
		}
	}

	if len(stale) > 0 {
		if err := m.downloadWithLock(ctx, stale); err != nil {
			return fmt.Errorf("failed to download catalog: %w", err)
		}
	}

	m.log.Info("Catalog ensured", "downloaded", len(stale), "duration", time.Since(start))
	return nil
}

// needsDownload decides what to do with one source. Missing files without a
// URL are seeded on the spot.
func (m *Manager) needsDownload(ctx context.Context, src Source) (bool, error) {
	if _, err := os.Stat(src.Path); err == nil {
		if src.URL == "" {
			m.log.Debug("No remote configured, using local file", "source", src.Name)
			return false, nil
		}
		if m.config.DisableRemoteCheck {
			m.log.Info("Remote checks disabled, using local file", "source", src.Name)
			return false, nil
		}

		upToDate, err := m.isUpToDate(ctx, src)
		if err != nil {
			m.log.Warn("Failed to verify catalog freshness", "source", src.Name, "error", err)
		}
		return !upToDate, nil
	}

	if src.URL == "" {
		return false, m.writeSeed(src)
	}
	return true, nil
}

// writeSeed writes the embedded starter data for src
func (m *Manager) writeSeed(src Source) error {
	data, err := seedFS.ReadFile(src.Seed)
	if err != nil {
		return fmt.Errorf("missing seed for %s: %w", src.Name, err)
	}
	if err := os.MkdirAll(filepath.Dir(src.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(src.Path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write seed for %s: %w", src.Name, err)
	}

	sum := sha256.Sum256(data)
	if err := m.updateMetadata(src.Name, Metadata{
		SHA256:       hex.EncodeToString(sum[:]),
		DownloadedAt: time.Now().UTC(),
		Size:         int64(len(data)),
		Seeded:       true,
	}); err != nil {
		m.log.Warn("Failed to save metadata", "error", err)
	}

	m.log.Info("🌱 Catalog seeded from embedded data", "source", src.Name, "path", src.Path)
	return nil
}

// isUpToDate compares the recorded ETag (or size) with the remote copy
func (m *Manager) isUpToDate(ctx context.Context, src Source) (bool, error) {
	all, err := m.loadMetadata()
	if err != nil {
		m.log.Debug("No local metadata found", "error", err)
		return false, nil
	}
	local, ok := all[src.Name]
	if !ok {
		return false, nil
	}

	remote, err := m.getRemoteMetadata(ctx, src.URL)
	if err != nil {
		return false, err
	}

	if remote.ETag != "" && local.ETag != "" {
		upToDate := remote.ETag == local.ETag
		m.log.Debug("ETag comparison", "source", src.Name, "local", local.ETag, "remote", remote.ETag, "up_to_date", upToDate)
		return upToDate, nil
	}

	upToDate := remote.Size == local.Size
	m.log.Debug("Size comparison", "source", src.Name, "local", local.Size, "remote", remote.Size, "up_to_date", upToDate)
	return upToDate, nil
}

// getRemoteMetadata fetches ETag and size with a HEAD request
func (m *Manager) getRemoteMetadata(ctx context.Context, url string) (*Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HEAD request failed with status: %d", resp.StatusCode)
	}

	return &Metadata{
		ETag: resp.Header.Get("ETag"),
		Size: resp.ContentLength,
	}, nil
}

// downloadWithLock downloads the stale sources while holding the refresh lock
func (m *Manager) downloadWithLock(ctx context.Context, sources []Source) error {
	m.log.Info("Attempting to acquire download lock", "lock_path", m.lockPath)

	if m.config.IgnoreLock {
		if _, err := os.Stat(m.lockPath); err == nil {
			m.log.Warn("IGNORE_LOCK enabled, forcefully removing existing lock file", "lock_path", m.lockPath)
			if err := os.Remove(m.lockPath); err != nil {
				m.log.Warn("Failed to remove lock file", "error", err)
			}
		}
	}

	lockFile, err := acquireLock(m.lockPath)
	if err != nil {
		if !m.config.IgnoreLock {
			m.log.Info("Another instance is downloading, waiting", "lock_path", m.lockPath)
			return m.waitForDownload(ctx, sources)
		}
		m.log.Warn("IGNORE_LOCK enabled but still failed to acquire lock, proceeding anyway", "error", err)
	}
	if lockFile != nil {
		defer releaseLock(lockFile, m.lockPath)
	}

	for _, src := range sources {
		if err := m.download(ctx, src); err != nil {
			return fmt.Errorf("%s: %w", src.Name, err)
		}
	}
	return nil
}

// download fetches src.URL into a temp file next to src.Path and renames it into place
func (m *Manager) download(ctx context.Context, src Source) error {
	start := time.Now()
	m.log.Info("Downloading catalog file", "source", src.Name, "url", src.URL)

	if err := os.MkdirAll(filepath.Dir(src.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	tmpPath := src.Path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	hash := sha256.New()
	written, err := io.Copy(io.MultiWriter(file, hash), resp.Body)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, src.Path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move download into place: %w", err)
	}

	sha := hex.EncodeToString(hash.Sum(nil))
	if err := m.updateMetadata(src.Name, Metadata{
		SHA256:       sha,
		DownloadedAt: time.Now().UTC(),
		ETag:         resp.Header.Get("ETag"),
		Size:         written,
	}); err != nil {
		m.log.Warn("Failed to save metadata", "error", err)
	}

	m.log.Info("Catalog file downloaded successfully", "source", src.Name, "size", written, "sha256", sha[:16]+"...", "duration", time.Since(start))
	return nil
}

// waitForDownload waits for another instance to finish downloading sources
func (m *Manager) waitForDownload(ctx context.Context, sources []Source) error {
	ticker := time.NewTicker(m.waitInterval)
	defer ticker.Stop()

	timeout := time.After(m.waitTimeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return fmt.Errorf("timeout waiting for download by other instance")
		case <-ticker.C:
			if _, err := os.Stat(m.lockPath); err == nil {
				continue
			}
			if allExist(sources) {
				m.log.Info("Catalog now available after other instance completed")
				return nil
			}
		}
	}
}

func allExist(sources []Source) bool {
	for _, src := range sources {
		if _, err := os.Stat(src.Path); err != nil {
			return false
		}
	}
	return true
}

// loadMetadata reads the per-source metadata file
func (m *Manager) loadMetadata() (map[string]Metadata, error) {
	data, err := os.ReadFile(m.metadataPath)
	if err != nil {
		return nil, err
	}

	var meta map[string]Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// updateMetadata replaces the entry for one source
func (m *Manager) updateMetadata(name string, meta Metadata) error {
	all, err := m.loadMetadata()
	if err != nil {
		all = map[string]Metadata{}
	}
	all[name] = meta

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.metadataPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(m.metadataPath, data, 0o644)
}

// acquireLock attempts to acquire an exclusive lock
func acquireLock(lockPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	// O_CREATE|O_EXCL fails if the file exists
	return os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
}

// releaseLock releases the lock file
func releaseLock(f *os.File, lockPath string) {
	f.Close()
	os.Remove(lockPath)
}

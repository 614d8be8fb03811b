// Package ddi manages the on-disk developer-disk-image cache the direct
// capture backend mounts before it can start a screenshot service.
package ddi

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/HandleConsolidated/xtool/internal/xerrors"
)

// Required file set for one cached developer disk image.
const (
	ManifestFile    = "BuildManifest.plist"
	ImageFile       = "Image.dmg"
	TrustcacheFile  = "Image.dmg.trustcache"
	defaultCacheDir = ".xtool/ddi"
)

// Fetcher downloads one DDI component file to dst. Real deployments wire
// this to Apple's developer disk image catalog; tests supply a stub.
type Fetcher func(ctx context.Context, name string, dst string) error

// MountFunc invokes the external mounting tool for a given udid and image
// directory.
type MountFunc func(ctx context.Context, udid, imageDir string) error

// Cache is the atomic on-disk store of developer disk images under
// ~/.xtool/ddi/.
type Cache struct {
	dir   string
	fetch Fetcher
	mount MountFunc
}

// New creates a Cache rooted at dir (the caller's $HOME/.xtool/ddi by
// convention; see DefaultDir).
func New(dir string, fetch Fetcher, mount MountFunc) *Cache {
	return &Cache{dir: dir, fetch: fetch, mount: mount}
}

// DefaultDir returns ~/.xtool/ddi, or an error if $HOME can't be resolved.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", xerrors.Wrap(xerrors.ResourceMissing, "cannot resolve home directory", err)
	}
	return filepath.Join(home, defaultCacheDir), nil
}

// EnsureMounted downloads any missing DDI files (atomically: to a temp
// path, then renamed into place; partial downloads are removed on
// failure) and mounts the image if a MountFunc is registered. Swallowing
// mount failures is the caller's responsibility (the direct capture
// backend does so deliberately, to let its own handshake surface a
// clearer error), not this method's.
func (c *Cache) EnsureMounted(ctx context.Context, udid string) error {
	if err := c.ensureDownloaded(ctx); err != nil {
		return err
	}

	if c.mount == nil {
		return nil
	}
	return c.mount(ctx, udid, c.dir)
}

func (c *Cache) ensureDownloaded(ctx context.Context) error {
	if c.fetch == nil {
		return nil
	}

	for _, name := range []string{ManifestFile, ImageFile, TrustcacheFile} {
		dst := filepath.Join(c.dir, name)
		if _, err := os.Stat(dst); err == nil {
			continue
		}

		if err := os.MkdirAll(c.dir, 0o755); err != nil {
			return xerrors.Wrap(xerrors.ResourceMissing, "cannot create DDI cache dir", err)
		}

		if err := c.downloadAtomic(ctx, name, dst); err != nil {
			return err
		}
	}

	return nil
}

// downloadAtomic fetches name to a temp file in the same directory as dst
// and renames it into place, deleting the temp file on any failure so a
// crash mid-download never leaves a corrupt cache entry.
func (c *Cache) downloadAtomic(ctx context.Context, name, dst string) error {
	tmp := dst + ".partial"

	if err := c.fetch(ctx, name, tmp); err != nil {
		_ = os.Remove(tmp)
		return xerrors.Wrap(xerrors.ResourceMissing, "failed to download "+name, err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return xerrors.Wrap(xerrors.ResourceMissing, "failed to finalize "+name, err)
	}

	return nil
}

// ExternalMount shells out to an external mounting tool (e.g. a bundled
// `ideviceimagemounter`-style binary) with the udid and cached image
// directory.
func ExternalMount(tool string) MountFunc {
	return func(ctx context.Context, udid, imageDir string) error {
		args := []string{"mount", imageDir}
		if udid != "" {
			args = append(args, "--udid", udid)
		}
		cmd := exec.CommandContext(ctx, tool, args...)
		if output, err := cmd.CombinedOutput(); err != nil {
			return xerrors.Wrap(xerrors.SubprocessFailure, string(output), err)
		}
		return nil
	}
}

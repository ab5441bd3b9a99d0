// Package store makes the persistent file store available to the logger.
package store

import (
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/ericogr/adclogger/pkg/config"
)

// Info describes a mounted store.
type Info struct {
	Backend string
	Root    string
	Files   int
	Used    int64
}

// Mount returns the filesystem selected by cfg. The os backend is rooted at
// cfg.BasePath, which is created when missing.
func Mount(cfg config.StoreConfig) (afero.Fs, Info, error) {
	info := Info{Backend: cfg.Backend, Root: cfg.BasePath}
	var fs afero.Fs
	switch cfg.Backend {
	case "memory":
		fs = afero.NewMemMapFs()
	case "os", "":
		if cfg.BasePath == "" {
			return nil, info, fmt.Errorf("store: empty base path")
		}
		if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
			return nil, info, fmt.Errorf("store: mount %s: %w", cfg.BasePath, err)
		}
		fs = afero.NewBasePathFs(afero.NewOsFs(), cfg.BasePath)
	default:
		return nil, info, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
	if err := usage(fs, &info); err != nil {
		return nil, info, err
	}
	return fs, info, nil
}

func usage(fs afero.Fs, info *Info) error {
	return afero.Walk(fs, "/", func(_ string, fi os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("store: scan: %w", err)
		}
		if !fi.IsDir() {
			info.Files++
			info.Used += fi.Size()
		}
		return nil
	})
}

package service

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/space-downloader/spacedl/internal/model"
)

const infoSuffix = ".info.json"

type metadata struct {
	Title    *string
	Uploader *string
	FilePath *string
}

type infoJSON struct {
	Title    *string `json:"title"`
	Uploader *string `json:"uploader"`
	Ext      *string `json:"ext"`
}

// readMetadata looks for the sidecar written next to the media. The one
// sharing the base name of destination wins, the newest one in dir is
// used otherwise. The file path is the first existing of <base>.<format>
// and <base>.<sidecar ext>, falling back to destination.
func readMetadata(dir string, format model.AudioFormat, destination string) metadata {
	var meta metadata
	if destination != "" {
		meta.FilePath = &destination
	}

	path := sidecarFor(destination)
	if path == "" {
		path = newestSidecar(dir)
	}
	if path == "" {
		return meta
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return meta
	}
	var info infoJSON
	if err := json.Unmarshal(b, &info); err != nil {
		return meta
	}
	meta.Title = nonEmpty(info.Title)
	meta.Uploader = nonEmpty(info.Uploader)

	base := strings.TrimSuffix(path, infoSuffix)
	exts := []string{format.String()}
	if info.Ext != nil && *info.Ext != "" {
		exts = append(exts, *info.Ext)
	}
	for _, ext := range exts {
		if candidate := base + "." + ext; isRegular(candidate) {
			meta.FilePath = &candidate
			break
		}
	}
	return meta
}

func sidecarFor(destination string) string {
	if destination == "" {
		return ""
	}
	base := strings.TrimSuffix(destination, filepath.Ext(destination))
	if p := base + infoSuffix; isRegular(p) {
		return p
	}
	return ""
}

func newestSidecar(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var (
		newest   string
		newestAt time.Time
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), infoSuffix) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || fi.ModTime().After(newestAt) {
			newest = filepath.Join(dir, e.Name())
			newestAt = fi.ModTime()
		}
	}
	return newest
}

func isRegular(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

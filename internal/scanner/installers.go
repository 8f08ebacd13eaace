package scanner

import (
	"archive/zip"
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// InstallerDepth bounds the installer walk below each root.
	InstallerDepth = 2
	// zipProbeEntries is how many archive entries are inspected.
	zipProbeEntries = 50
)

// InstallerExtensions are the file types considered installers. Zips only
// count when IsInstallerZip says so.
var InstallerExtensions = []string{".dmg", ".pkg", ".mpkg", ".iso", ".xip", ".zip"}

// DefaultInstallerRoots are the folders downloads usually land in.
func DefaultInstallerRoots(home string) []string {
	if home == "" {
		return nil
	}
	return []string{
		filepath.Join(home, "Downloads"),
		filepath.Join(home, "Desktop"),
		filepath.Join(home, "Documents"),
	}
}

// InstallerScanner finds leftover installer files.
type InstallerScanner struct {
	roots    []string
	MaxDepth int
	Exclude  func(path string) bool
	now      func() time.Time
	log      *logrus.Entry
}

// NewInstallerScanner creates a scanner over roots.
func NewInstallerScanner(roots []string, log *logrus.Entry) *InstallerScanner {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &InstallerScanner{
		roots:    dedupe(roots),
		MaxDepth: InstallerDepth,
		now:      time.Now,
		log:      log.WithField("component", "installer-scanner"),
	}
}

// Scan returns installer candidates. File sizes are taken from the
// directory entry; bundle directories (.pkg, .mpkg) are left unsized for a
// Sizer.
func (s *InstallerScanner) Scan(ctx context.Context) ([]DiscoveredPath, error) {
	now := s.now()
	var found []DiscoveredPath
	noHidden := func(string) bool { return false }

	for _, root := range s.roots {
		err := walk(ctx, root, s.MaxDepth, noHidden, func(path string, d fs.DirEntry, depth int) bool {
			ext := installerExt(d.Name())
			if ext == "" {
				return false
			}
			if d.IsDir() && ext != ".pkg" && ext != ".mpkg" {
				return false
			}
			if !d.IsDir() && !d.Type().IsRegular() {
				return false
			}
			if ext == ".zip" && !IsInstallerZip(path) {
				return false
			}
			if s.Exclude != nil && s.Exclude(path) {
				return true
			}
			p := newDiscovered(path, strings.TrimPrefix(ext, "."), modTime(d), now)
			if !d.IsDir() {
				if info, err := d.Info(); err == nil {
					size := info.Size()
					p.SizeBytes = &size
				}
			}
			found = append(found, p)
			return true
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return found, err
			}
			s.log.WithFields(logrus.Fields{"root": root, "error": err}).Warn("Installer walk failed")
		}
	}
	return found, nil
}

func installerExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range InstallerExtensions {
		if ext == e {
			return ext
		}
	}
	return ""
}

// IsInstallerZip reports whether one of the archive's first entries looks
// like an installer payload: a .pkg, .mpkg or .dmg file, or an .app bundle.
// Unreadable archives are not installers.
func IsInstallerZip(path string) bool {
	r, err := zip.OpenReader(path)
	if err != nil {
		return false
	}
	defer r.Close()

	for i, f := range r.File {
		if i >= zipProbeEntries {
			break
		}
		if looksLikePayload(f.Name) {
			return true
		}
	}
	return false
}

func looksLikePayload(name string) bool {
	name = strings.ToLower(filepath.ToSlash(name))
	if strings.HasPrefix(name, "__macosx/") {
		return false
	}
	if strings.Contains(name, ".app/") || strings.HasSuffix(name, ".app") {
		return true
	}
	trimmed := strings.TrimSuffix(name, "/")
	for _, ext := range []string{".pkg", ".mpkg", ".dmg"} {
		if strings.HasSuffix(trimmed, ext) {
			return true
		}
	}
	return false
}

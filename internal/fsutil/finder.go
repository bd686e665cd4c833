// Package fsutil provides file system utility functions.
package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// File is a regular file found under a walk root.
type File struct {
	// Path is the full path of the file.
	Path string
	// Rel is the path relative to the walk root, always slash-separated.
	Rel string
	// Size is the file size in bytes.
	Size int64
	// ModTime is the file's last modification time.
	ModTime time.Time
}

// FindFiles recursively walks rootPath and returns every regular file, sorted
// by relative path. A missing root is not an error and yields no files.
func FindFiles(rootPath string) ([]File, error) {
	if _, err := os.Stat(rootPath); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	var files []File
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(rootPath, path)
		if err != nil {
			return err
		}
		files = append(files, File{Path: path, Rel: filepath.ToSlash(rel), Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Rel < files[j].Rel })
	return files, nil
}

// FindFilesByExtension recursively searches the given root path for all files ending
// with the specified extension. It returns a slice of their full paths.
func FindFilesByExtension(rootPath string, extension string) ([]string, error) {
	if extension == "" {
		panic("extension must not be empty")
	}

	files, err := FindFiles(rootPath)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, f := range files {
		if strings.HasSuffix(f.Rel, extension) {
			out = append(out, f.Path)
		}
	}
	return out, nil
}

// SubDirs lists the immediate subdirectories of dir in name order.
func SubDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(dir, e.Name()))
		}
	}
	return dirs, nil
}

// ModTimes returns the modification time of every existing directory in
// paths. Missing paths are left out of the snapshot.
func ModTimes(paths []string) map[string]time.Time {
	snapshot := make(map[string]time.Time, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			continue
		}
		snapshot[p] = info.ModTime()
	}
	return snapshot
}

// SameModTimes reports whether two snapshots taken by ModTimes are identical.
func SameModTimes(a, b map[string]time.Time) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok || !va.Equal(vb) {
			return false
		}
	}
	return true
}

// Stamp summarises the files under a set of roots. Two stamps differ when a
// file was added, removed or modified between them.
type Stamp struct {
	Files  int
	Latest time.Time
}

// Equal reports whether both stamps describe the same file set.
func (s Stamp) Equal(o Stamp) bool {
	return s.Files == o.Files && s.Latest.Equal(o.Latest)
}

// StampOf walks every root and returns their combined Stamp. Missing roots
// contribute nothing.
func StampOf(roots ...string) (Stamp, error) {
	var st Stamp
	for _, root := range roots {
		files, err := FindFiles(root)
		if err != nil {
			return Stamp{}, err
		}
		st.Files += len(files)
		for _, f := range files {
			if f.ModTime.After(st.Latest) {
				st.Latest = f.ModTime
			}
		}
	}
	return st, nil
}

// IsFile reports whether path exists and is a regular file.
func IsFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

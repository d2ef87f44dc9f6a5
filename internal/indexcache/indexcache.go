package indexcache

import (
	"encoding/gob"
	"errors"
	"os"
	"path/filepath"
)

const currentVersion = 2

// Index is the gob form of a parsed dictionary file. It is only valid for
// the exact source file it was built from.
type Index struct {
	Version     int
	SourcePath  string
	SourceSize  int64
	SourceMtime int64

	Keys    []string
	Entries map[string][]string
	Lines   int
	Skipped int
}

func indexPath(sourcePath string) string {
	return sourcePath + ".idx"
}

// Load returns the cached index for sourcePath. ok is false when there is no
// cache or it no longer matches the source file.
func Load(sourcePath string) (*Index, bool, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, false, err
	}
	f, err := os.Open(indexPath(sourcePath))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var idx Index
	if err := gob.NewDecoder(f).Decode(&idx); err != nil {
		return nil, false, err
	}
	if idx.Version != currentVersion {
		return nil, false, nil
	}
	if idx.SourceSize != info.Size() || idx.SourceMtime != info.ModTime().UnixNano() {
		return nil, false, nil
	}
	if filepath.Clean(idx.SourcePath) != filepath.Clean(sourcePath) {
		return nil, false, nil
	}
	return &idx, true, nil
}

// Save writes idx for sourcePath, stamping it with the source's current size
// and mtime. The write goes through a temp file and a rename.
func Save(sourcePath string, idx *Index) error {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return err
	}
	idx.Version = currentVersion
	idx.SourcePath = sourcePath
	idx.SourceSize = info.Size()
	idx.SourceMtime = info.ModTime().UnixNano()

	dst := indexPath(sourcePath)
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if err := gob.NewEncoder(tmp).Encode(idx); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, dst)
}

package logtable

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// journal is the size journal described in spec §4.5: a JSON mapping from
// filename to the last known committed byte size, persisted to
// sizes.json. Adapted from the teacher's metastore.go JSON load/save
// idiom (pkg/metadata/metastore.go), trading its table schema payload for
// a flat size map and its CreateTable/AddFile mutators for update/check.
type journal struct {
	mu   sync.RWMutex `json:"-"`
	path string       `json:"-"`

	Sizes map[string]int64 `json:"sizes"`
}

func newJournal(path string) (*journal, error) {
	j := &journal{path: path, Sizes: make(map[string]int64)}
	if err := j.load(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *journal) load() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := os.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, j)
}

// Assumes j.mu is held for writing.
func (j *journal) save() error {
	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(j.path, data, 0644)
}

// update records the current on-disk size of each path, keyed by base
// filename, and persists the journal. Called once at the end of
// Writer.Finish for every stream file touched plus the marks file (spec
// §4.3 step 6).
func (j *journal) update(paths []string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil {
			return errors.Wrapf(err, "updating size journal for %q", p)
		}
		j.Sizes[filepath.Base(p)] = fi.Size()
	}
	return j.save()
}

// check verifies that every recorded file's current byte size equals its
// journaled size. A missing file or a size mismatch is a failure (spec
// §4.5); dir is the table directory the journal's filenames are relative
// to.
func (j *journal) check(dir string) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()

	for name, want := range j.Sizes {
		fi, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			return false
		}
		if fi.Size() != want {
			return false
		}
	}
	return true
}

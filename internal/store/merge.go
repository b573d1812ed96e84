package store

import (
	"errors"
	"fmt"
)

// ErrMergeSource marks a MergeFrom failure caused by the source store. The
// receiving store is left untouched when it is returned.
var ErrMergeSource = errors.New("read merge source")

// MergeFrom inserts every row of src into s. Rows already present in s are
// ignored, and the rows of every file in replace are deleted first, so a
// re-indexed file does not keep rows from an older pass. src is read in
// full before s is written. It returns the number of rows read from src;
// the writes stay pending until s.Flush.
func (s *Store) MergeFrom(src *Store, replace ...string) (int, error) {
	rows, err := Collect(src.Scan())
	if err != nil {
		return 0, fmt.Errorf("%w %s: %w", ErrMergeSource, src.Path(), err)
	}
	for _, file := range replace {
		if err := s.DeleteByFile(file); err != nil {
			return 0, fmt.Errorf("merge from %s: %w", src.Path(), err)
		}
	}
	for _, sym := range rows {
		if err := s.Insert(sym); err != nil {
			return 0, fmt.Errorf("merge from %s: %w", src.Path(), err)
		}
	}
	return len(rows), nil
}

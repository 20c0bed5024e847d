// Package archive rotates the monthly history and log files.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"herald/internal/logging"
)

// Target is one file the rotator archives. Reset writes the fresh, empty
// document after the old one was moved aside.
type Target struct {
	Name  string
	Path  string
	Reset func() error
}

// TruncateFile returns a Reset that leaves path as an empty file.
func TruncateFile(path string) func() error {
	return func() error { return os.WriteFile(path, nil, 0o644) }
}

// Rotator archives its targets on the last day of each month.
type Rotator struct {
	targets []Target
	loc     *time.Location
}

func NewRotator(loc *time.Location, targets ...Target) *Rotator {
	if loc == nil {
		loc = time.Local
	}
	return &Rotator{targets: targets, loc: loc}
}

// IsLastDayOfMonth reports whether the day after t is the first of a month.
func IsLastDayOfMonth(t time.Time) bool {
	return t.AddDate(0, 0, 1).Day() == 1
}

// ArchiveName returns {name}_{YYYY-MM}{ext} next to path.
func ArchiveName(path string, t time.Time) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s_%s%s", base, t.Format("2006-01"), ext)
}

// Run archives when now is the last day of the month in the rotator's zone.
func (r *Rotator) Run(now time.Time) (bool, error) {
	local := now.In(r.loc)
	if !IsLastDayOfMonth(local) {
		logging.Debug("archive_not_month_end", logging.Fields{"date": local.Format("2006-01-02")})
		return false, nil
	}
	return true, r.Force(now)
}

// Force archives regardless of the date.
func (r *Rotator) Force(now time.Time) error {
	local := now.In(r.loc)
	var errs []error
	for _, t := range r.targets {
		dst, err := r.archive(t.Path, local)
		if err != nil {
			errs = append(errs, fmt.Errorf("archive %s: %w", t.Name, err))
			continue
		}
		if t.Reset != nil {
			if err := t.Reset(); err != nil {
				errs = append(errs, fmt.Errorf("reset %s: %w", t.Name, err))
				continue
			}
		}
		logging.Info("archive_rotated", logging.Fields{"target": t.Name, "from": t.Path, "to": dst})
	}
	return errors.Join(errs...)
}

// archive moves path aside. A missing source is not an error; an existing
// archive is never overwritten.
func (r *Rotator) archive(path string, t time.Time) (string, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return "", nil
	} else if err != nil {
		return "", err
	}
	dst := ArchiveName(path, t)
	for i := 1; fileExists(dst); i++ {
		ext := filepath.Ext(path)
		dst = fmt.Sprintf("%s.%d%s", strings.TrimSuffix(ArchiveName(path, t), ext), i, ext)
	}
	return dst, os.Rename(path, dst)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

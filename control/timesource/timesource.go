// Package timesource reads the device's local time and notices when its time zone changes.
package timesource

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/net/trace"
)

// Source is a local clock.
type Source interface {
	Now() time.Time
	// ZoneChanges receives a value after the local time zone changes.
	ZoneChanges() <-chan struct{}
}

// DefaultZoneFile is the usual location of the system time zone.
const DefaultZoneFile = "/etc/localtime"

// System is the wall clock in the system time zone.  The zone is read from $TZ if set, otherwise
// from a zoneinfo file (usually a symlink that tools like timedatectl replace), and is reloaded
// whenever that file changes.
type System struct {
	ZoneFile string

	locMu sync.RWMutex
	loc   *time.Location // must hold locMu to read or write.

	ch chan struct{}
}

// NewSystem loads the current zone.  It fails if no zone can be determined, since a watch face
// showing the wrong day is worse than one that doesn't start.
func NewSystem(zoneFile string) (*System, error) {
	s := &System{ZoneFile: zoneFile, ch: make(chan struct{}, 1)}
	loc, err := s.load()
	if err != nil {
		return nil, fmt.Errorf("load time zone: %w", err)
	}
	s.loc = loc
	return s, nil
}

func (s *System) load() (*time.Location, error) {
	if tz := os.Getenv("TZ"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("$TZ=%q: %w", tz, err)
		}
		return loc, nil
	}
	data, err := ioutil.ReadFile(s.ZoneFile)
	if err != nil {
		return nil, fmt.Errorf("read zone file: %w", err)
	}
	name := "Local"
	if target, err := filepath.EvalSymlinks(s.ZoneFile); err == nil {
		name = zoneName(target)
	}
	loc, err := time.LoadLocationFromTZData(name, data)
	if err != nil {
		return nil, fmt.Errorf("parse zone file %s: %w", s.ZoneFile, err)
	}
	return loc, nil
}

// zoneName turns /usr/share/zoneinfo/America/New_York into America/New_York.
func zoneName(path string) string {
	const marker = "zoneinfo/"
	if i := strings.LastIndex(path, marker); i >= 0 {
		return path[i+len(marker):]
	}
	return filepath.Base(path)
}

// Location returns the current zone.
func (s *System) Location() *time.Location {
	s.locMu.RLock()
	defer s.locMu.RUnlock()
	return s.loc
}

// Now returns the current time in the current zone.
func (s *System) Now() time.Time {
	return time.Now().In(s.Location())
}

func (s *System) ZoneChanges() <-chan struct{} { return s.ch }

// Reload re-reads the zone and signals ZoneChanges if it differs from the previous one.  Both the
// name and the current offset are compared, since an updated zoneinfo file keeps its name.
func (s *System) Reload() (bool, error) {
	loc, err := s.load()
	if err != nil {
		return false, err
	}
	now := time.Now()
	s.locMu.Lock()
	old := s.loc
	s.loc = loc
	s.locMu.Unlock()

	oldAbbrev, oldOffset := now.In(old).Zone()
	newAbbrev, newOffset := now.In(loc).Zone()
	if old.String() == loc.String() && oldAbbrev == newAbbrev && oldOffset == newOffset {
		return false, nil
	}
	select {
	case s.ch <- struct{}{}:
	default:
	}
	return true, nil
}

// Watch reloads the zone whenever the zone file is replaced, until the context is cancelled.  The
// parent directory is watched rather than the file, since the file is usually a symlink that gets
// swapped out.
func (s *System) Watch(ctx context.Context) error {
	l := trace.NewEventLog("timesource", s.ZoneFile)
	defer l.Finish()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(s.ZoneFile)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.ZoneFile), err)
	}
	base := filepath.Base(s.ZoneFile)
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("watching time zone: %w", ctx.Err())
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("watcher error channel closed")
			}
			l.Errorf("watch: %v", err)
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("watcher event channel closed")
			}
			if filepath.Base(ev.Name) != base || ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			changed, err := s.Reload()
			if err != nil {
				// The file is often briefly missing while it's replaced; the Create
				// that follows will succeed.
				l.Errorf("reload after %v: %v", ev, err)
				continue
			}
			l.Printf("reload after %v: changed=%v zone=%v", ev, changed, s.Location())
		}
	}
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SessionLayout is the timestamp format of session directory names.
const SessionLayout = "2006-01-02T15_04_05"

// Session is one scanning run's destination and numbering context.
type Session struct {
	ID         uuid.UUID
	Created    time.Time
	Dir        string
	Counter    int
	Resolution string
	Extension  string
}

// Path returns the file the next capture is written to.
func (s *Session) Path() string {
	return filepath.Join(s.Dir, FrameName(s.Counter, s.Extension))
}

// FrameName returns the file name for frame n.
func FrameName(n int, ext string) string {
	return fmt.Sprintf("%08d.%s", n, ext)
}

// SessionName returns the directory name for a session started at t.
func SessionName(t time.Time, resolution string) string {
	name := t.Format(SessionLayout)
	if resolution != "" {
		name += "_" + resolution
	}
	return name
}

// IsSessionName reports whether name looks like a session directory.
func IsSessionName(name string) bool {
	if len(name) < len(SessionLayout) {
		return false
	}
	_, err := time.Parse(SessionLayout, name[:len(SessionLayout)])
	return err == nil
}

// createSession makes a new session directory under root. On a name
// collision the timestamp is moved forward one second and tried once more.
func createSession(root, ext, resolution string, now time.Time) (*Session, error) {
	removeEmptySessions(root)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		created := now.Add(time.Duration(attempt) * time.Second)
		dir := filepath.Join(root, SessionName(created, resolution))
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return &Session{
				ID:         uuid.New(),
				Created:    created,
				Dir:        dir,
				Resolution: resolution,
				Extension:  ext,
			}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %v", ErrTargetUnavailable, err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrTargetUnavailable, lastErr)
}

// openLatestSession reopens the most recent session directory under root.
func openLatestSession(root, ext string, next int) (*Session, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTargetUnavailable, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && IsSessionName(e.Name()) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no session directory in %s", ErrNoSession, root)
	}
	sort.Strings(names)
	name := names[len(names)-1]

	created, _ := time.ParseInLocation(SessionLayout, name[:len(SessionLayout)], time.Local)
	var resolution string
	if len(name) > len(SessionLayout)+1 {
		resolution = name[len(SessionLayout)+1:]
	}
	return &Session{
		ID:         uuid.New(),
		Created:    created,
		Dir:        filepath.Join(root, name),
		Counter:    next,
		Resolution: resolution,
		Extension:  ext,
	}, nil
}

// removeEmptySessions deletes session directories that never received a frame.
func removeEmptySessions(root string) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() || !IsSessionName(e.Name()) {
			continue
		}
		dir := filepath.Join(root, e.Name())
		children, err := os.ReadDir(dir)
		if err != nil || len(children) > 0 {
			continue
		}
		if err := os.Remove(dir); err == nil {
			log.Debug().Str("component", "scan").Str("dir", dir).Msg("removed empty session")
		}
	}
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package overlay

// Screen names a status screen.
type Screen string

// Status screens
const (
	ScreenNone              Screen = ""
	ScreenInsertFilm        Screen = "insert-film"
	ScreenReadyToScan       Screen = "ready-to-scan"
	ScreenWaitingForSpace   Screen = "waiting-for-space"
	ScreenWaitingForDrain   Screen = "waiting-for-drain"
	ScreenNoDrive           Screen = "no-drive"
	ScreenTargetUnavailable Screen = "target-unavailable"
)

// Idle reports whether the screen is a resting status screen that counts
// toward the sleep timeout.
func (s Screen) Idle() bool {
	switch s {
	case ScreenInsertFilm, ScreenReadyToScan, ScreenNoDrive, ScreenTargetUnavailable:
		return true
	}
	return false
}

type screenText struct {
	title string
	lines []string
}

var screenTexts = map[Screen]screenText{
	ScreenInsertFilm:        {"INSERT FILM", []string{"Thread the film through the gate"}},
	ScreenReadyToScan:       {"READY TO SCAN", []string{"Press start on the scanner"}},
	ScreenWaitingForSpace:   {"WAITING FOR SPACE", []string{"Capture paused until frames are synced"}},
	ScreenWaitingForDrain:   {"SYNCING", []string{"Waiting for frames to leave the scanner"}},
	ScreenNoDrive:           {"NO DRIVE", []string{"Connect the storage drive"}},
	ScreenTargetUnavailable: {"TARGET UNAVAILABLE", []string{"Cannot create a scan directory"}},
}

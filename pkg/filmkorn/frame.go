// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package filmkorn

import (
	"encoding/binary"
	"time"
)

// Zoom is the zoom level carried by ReportInitialValues.
type Zoom uint8

// Zoom levels
const (
	Zoom1x Zoom = iota
	Zoom3x
	Zoom10x
)

func (z Zoom) String() string {
	switch z {
	case Zoom1x:
		return "1:1"
	case Zoom3x:
		return "3:1"
	case Zoom10x:
		return "10:1"
	default:
		return "?"
	}
}

// Frame is one decoded controller response.
type Frame struct {
	Command   Command
	Seq       uint8
	Args      [ArgSize]byte
	Timestamp time.Time
}

// InitialValues is the controller state reported after a resync request.
type InitialValues struct {
	Zoom       Zoom
	Lamp       bool
	FilmLoaded bool
	Exposure   uint16
}

// Exposure returns the 16-bit potentiometer reading carried in a2..a3.
func (f *Frame) Exposure() uint16 {
	return binary.BigEndian.Uint16(f.Args[2:4])
}

// InitialValues unpacks a ReportInitialValues frame.
// ok is false for any other command.
func (f *Frame) InitialValues() (InitialValues, bool) {
	if f.Command != CmdReportInitialValues {
		return InitialValues{}, false
	}
	zoom := Zoom(f.Args[0])
	if zoom > Zoom10x {
		zoom = Zoom1x
	}
	return InitialValues{
		Zoom:       zoom,
		Lamp:       f.Args[1]&FlagLamp != 0,
		FilmLoaded: f.Args[1]&FlagFilmLoaded != 0,
		Exposure:   f.Exposure(),
	}, true
}

// FilmLoaded reports the film sensor state implied by the frame.
// ok is false when the frame carries no film state.
func (f *Frame) FilmLoaded() (loaded bool, ok bool) {
	switch f.Command {
	case CmdShowReadyToScan:
		return true, true
	case CmdShowInsertFilm:
		return false, true
	case CmdReportInitialValues:
		return f.Args[1]&FlagFilmLoaded != 0, true
	}
	return false, false
}

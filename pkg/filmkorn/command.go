// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package filmkorn

import "fmt"

// Command is a signal received from the controller.
type Command uint8

// Controller → host commands
const (
	CmdIdle Command = iota
	CmdSetZoom1x
	CmdSetZoom3x
	CmdSetZoom10x
	CmdCaptureFrame
	CmdLampOff
	CmdLampOn
	CmdStartScan
	CmdStopScan
	CmdSetExposure
	CmdShowInsertFilm
	CmdShowReadyToScan
	CmdReportInitialValues
	CmdControllerReset

	// cmdCount bounds the valid opcode range
	cmdCount
)

// HostCommand is a signal written by the host.
type HostCommand uint8

// Host → controller commands
const (
	HostPoll HostCommand = iota
	HostReady
	HostRequestInitialValues

	hostCmdCount
)

// Valid reports whether c lies inside the known opcode range.
func (c Command) Valid() bool {
	return c < cmdCount
}

// String returns the wire name of the command
func (c Command) String() string {
	switch c {
	case CmdIdle:
		return "IDLE"
	case CmdSetZoom1x:
		return "ZOOM_1X"
	case CmdSetZoom3x:
		return "ZOOM_3X"
	case CmdSetZoom10x:
		return "ZOOM_10X"
	case CmdCaptureFrame:
		return "CAPTURE_FRAME"
	case CmdLampOff:
		return "LAMP_OFF"
	case CmdLampOn:
		return "LAMP_ON"
	case CmdStartScan:
		return "START_SCAN"
	case CmdStopScan:
		return "STOP_SCAN"
	case CmdSetExposure:
		return "SET_EXPOSURE"
	case CmdShowInsertFilm:
		return "SHOW_INSERT_FILM"
	case CmdShowReadyToScan:
		return "SHOW_READY_TO_SCAN"
	case CmdReportInitialValues:
		return "REPORT_INITIAL_VALUES"
	case CmdControllerReset:
		return "CONTROLLER_RESET"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(c))
	}
}

// ArgLen returns the number of meaningful argument bytes for the command.
func (c Command) ArgLen() int {
	switch c {
	case CmdSetExposure:
		return 2
	case CmdReportInitialValues:
		return ArgSize
	default:
		return 0
	}
}

// Valid reports whether h is a known host opcode.
func (h HostCommand) Valid() bool {
	return h < hostCmdCount
}

func (h HostCommand) String() string {
	switch h {
	case HostPoll:
		return "POLL"
	case HostReady:
		return "READY"
	case HostRequestInitialValues:
		return "REQUEST_INITIAL_VALUES"
	default:
		return fmt.Sprintf("UNKNOWN_HOST(0x%02X)", uint8(h))
	}
}

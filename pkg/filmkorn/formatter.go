// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package filmkorn

import "fmt"

// FormatFrame formats a frame into a human-readable line
func FormatFrame(f *Frame) string {
	timestamp := f.Timestamp.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s (0x%02X) seq=%d", timestamp, f.Command, uint8(f.Command), f.Seq)
	return result + formatArgs(f) + "\n"
}

func formatArgs(f *Frame) string {
	switch f.Command {
	case CmdSetExposure:
		return fmt.Sprintf(" exposure=%d", f.Exposure())
	case CmdReportInitialValues:
		v, _ := f.InitialValues()
		return fmt.Sprintf(" zoom=%s lamp=%t film=%t exposure=%d", v.Zoom, v.Lamp, v.FilmLoaded, v.Exposure)
	}
	return ""
}

// FormatBlock renders a raw block as hex for undecodable responses
func FormatBlock(block []byte) string {
	result := ""
	for i, b := range block {
		if i > 0 {
			result += " "
		}
		result += fmt.Sprintf("%02X", b)
	}
	return result
}

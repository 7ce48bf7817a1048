// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package overlay

import (
	"fmt"
	"math"
	"time"
)

// standardDenominators are the third-stop shutter speeds below one second.
var standardDenominators = []int{
	10000, 8000, 6400, 5000, 4000, 3200, 2500, 2000, 1600, 1250, 1000,
	800, 640, 500, 400, 320, 250, 200, 160, 125, 100, 80, 60, 50, 40,
	30, 25, 20, 15, 13, 10, 8, 6, 5, 4, 3, 2,
}

// secondsFrom is where exposures switch to seconds. Anything shorter is
// nearer to 1/2 than to a one-second exposure.
const secondsFrom = 700 * time.Millisecond

// FormatShutter renders d as the nearest standard shutter speed, e.g. "1/250".
// Exposures of 0.7s or longer are shown in seconds, e.g. "0.8s".
func FormatShutter(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	if d >= secondsFrom {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	best := standardDenominators[0]
	bestDist := math.Inf(1)
	for _, den := range standardDenominators {
		dist := math.Abs(math.Log(d.Seconds() * float64(den)))
		if dist < bestDist {
			best, bestDist = den, dist
		}
	}
	return fmt.Sprintf("1/%d", best)
}

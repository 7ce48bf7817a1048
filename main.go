// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Filmkorn - film scanner control core
//
// Polls the scanner's microcontroller and drives the camera, the status
// overlay and the storage target switch.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Thermoquad/filmkorn/cmd"
)

func main() {
	err := cmd.Execute()
	code := cmd.ExitCode(err)

	var ee *cmd.ExitError
	if err != nil && (!errors.As(err, &ee) || ee.Err != nil) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(code)
}

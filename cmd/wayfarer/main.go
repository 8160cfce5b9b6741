// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command wayfarer plans travel itineraries from the terminal or serves
// the planner over HTTP and websockets.
package main

import (
	"fmt"
	"os"

	"github.com/AleutianAI/wayfarer/pkg/secrets"
)

func main() {
	os.Exit(run())
}

func run() int {
	defer secrets.Purge()
	defer closeLogger()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

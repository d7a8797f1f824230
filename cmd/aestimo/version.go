package main

import (
	"fmt"

	"github.com/ternarybob/aestimo/internal/common"
)

// printVersion prints the build version information.
func printVersion() {
	common.LoadVersionFromFile()
	fmt.Printf("Aestimo version %s\n", common.GetFullVersion())
}

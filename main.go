// The main package for the collector executable.
package main

import (
	"github.com/JakeFAU/press-release-collector/cmd"
)

func main() {
	cmd.Execute()
}

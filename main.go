// The main package for the jobharvest executable.
package main

import (
	"jobharvest/cmd"
)

func main() {
	cmd.Execute()
}

package main

import "github.com/ibmesh/goimb/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/dyike/CortexDesk/internal/cli"

func main() {
	cli.Run()
}

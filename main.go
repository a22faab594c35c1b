package main

import "github.com/audiolibrelab/ampcontrol/cmd"

func main() {
	cmd.Execute()
}

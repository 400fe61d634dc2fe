package main

import "github.com/audiolibrelab/wavesync/cmd"

func main() {
	cmd.Execute()
}

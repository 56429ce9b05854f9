package main

import "upsidedown/cmd"

func main() {
	cmd.Execute()
}

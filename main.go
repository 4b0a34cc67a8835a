package main

import "github.com/kozaktomas/facecloak/cmd"

func main() {
	cmd.Execute()
}

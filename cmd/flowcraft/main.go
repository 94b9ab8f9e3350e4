package main

import "github.com/flowcraft/flowcraft/cmd/flowcraft/cmd"

func main() {
	cmd.Execute()
}

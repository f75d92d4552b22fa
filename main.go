package main

import "github.com/kris-hansen/workbench/cmd"

func main() {
	cmd.Execute()
}

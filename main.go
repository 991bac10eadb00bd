package main

import "github.com/kikai-build/kikai/cmd"

func main() {
	cmd.Execute()
}

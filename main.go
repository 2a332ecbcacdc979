package main

import "github.com/no-wing/no-wing/cmd"

func main() {
	cmd.Execute()
}

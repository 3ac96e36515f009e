package main

import "github.com/NoahJunge/polymarkettracker/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/bidhouse/server/cmd"

func main() {
	cmd.Execute()
}

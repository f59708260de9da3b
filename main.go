package main

import "diagload/cmd"

func main() {
	cmd.Execute()
}

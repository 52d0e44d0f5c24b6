package main

import "flowbench/cmd"

func main() {
	cmd.Execute()
}

package main

import "aquasense/cli"

func main() {
	cli.Execute()
}

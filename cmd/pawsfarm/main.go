package main

import "jordanella.com/paws-farm-go/internal/cli"

func main() {
	cli.Execute()
}

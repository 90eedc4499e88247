package main

import "github.com/enrichops/overseer/internal/cli"

func main() {
	cli.Execute()
}

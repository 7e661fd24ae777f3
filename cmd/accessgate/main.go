package main

import "github.com/investable/accessgate/internal/cli"

func main() {
	cli.Execute()
}

package main

import "github.com/timmy/emoreply/internal/cli"

func main() {
	cli.Execute()
}

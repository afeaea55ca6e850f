package main

import "github.com/ytget/streamproxy/internal/cli"

func main() {
	cli.Execute()
}

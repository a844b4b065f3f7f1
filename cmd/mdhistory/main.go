package main

import "github.com/wow-signal-dev/metadata-remote-sub000/internal/cli"

func main() {
	cli.Execute()
}

package main

import "github.com/dyike/agenttrader/internal/cli"

func main() {
	cli.Run()
}

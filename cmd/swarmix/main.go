package main

import "github.com/agusx1211/swarmix/internal/cli"

func main() {
	cli.Execute()
}

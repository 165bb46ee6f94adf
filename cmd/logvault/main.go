package main

import "github.com/coffersTech/logvault/internal/cli"

func main() {
	cli.Execute()
}

package main

import (
	"github.com/theblitlabs/parity-ids/cmd/cli"
)

func main() {
	cli.Execute()
}

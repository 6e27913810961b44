package main

import (
	"github.com/mchmarny/dropscore/pkg/cli"
)

func main() {
	cli.Execute()
}

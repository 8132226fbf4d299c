package main

import (
	"github.com/sidkik/orangeshare/cmd"
	"github.com/sidkik/orangeshare/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}

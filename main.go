package main

import (
	"os"

	"github.com/lhecker/tumblr-backup/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}

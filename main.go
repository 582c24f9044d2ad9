package main

import (
	"example.com/horizon/services/ledger/cmd"
)

func main() {
	cmd.Execute()
}

package main

import (
	"github.com/qklafk/deribit-price-tracker/internal/cli"
)

func main() {
	cli.Execute()
}

package main

import (
	"holder-rewards/internal/cli"
)

func main() {
	cli.Execute()
}

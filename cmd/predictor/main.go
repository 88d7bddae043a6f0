package main

import "market-predictor/internal/cli"

func main() {
	cli.Execute()
}

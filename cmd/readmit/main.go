package main

import "github.com/mchmarny/readmit/pkg/cli"

func main() {
	cli.Execute()
}

package main

import "github.com/samirrijal/orchardscan/internal/cli"

func main() {
	cli.Execute()
}

package main

import "github.com/artemshloyda/neonconvert/internal/cli"

func main() {
	cli.Execute()
}

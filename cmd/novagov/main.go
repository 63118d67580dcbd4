package main

import "github.com/Pr0Services/novagov/internal/cli"

func main() {
	cli.Execute()
}

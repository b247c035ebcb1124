package main

import "github.com/vietddude/bulwark/internal/cli"

func main() {
	cli.Execute()
}

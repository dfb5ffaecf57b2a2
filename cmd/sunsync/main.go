package main

import "github.com/sunsync/sunsync/internal/cli"

func main() {
	cli.Execute()
}

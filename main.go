package main

import "github.com/openregs/regrag/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/nfrund/hackchat/cmd/hackchat/cmd"

func main() {
	cmd.Execute()
}

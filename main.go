package main

import "github.com/coderoom/server/cmd"

func main() {
	cmd.Execute()
}

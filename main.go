package main

import "github.com/studystim/studystim/cmd"

func main() {
	cmd.Execute()
}

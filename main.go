package main

import "github.com/cyyever/largedict/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/facemark/facemark/cmd"

func main() {
	cmd.Execute()
}

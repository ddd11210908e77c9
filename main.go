package main

import "github.com/armanbolatov/associative-recurrent-memory-transformer/cmd"

func main() {
	cmd.Execute()
}

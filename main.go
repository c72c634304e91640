package main

import "github.com/sadeshmukh/discord-ai/cmd"

func main() {
	cmd.Execute()
}

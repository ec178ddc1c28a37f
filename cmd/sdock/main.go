package main

import "github.com/bryanchriswhite/sdock/cmd/sdock/commands"

func main() {
	commands.Execute()
}

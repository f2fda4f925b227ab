package main

import "replybot/cmd"

func main() {
	cmd.Execute()
}

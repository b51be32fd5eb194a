package main

import "github.com/nfrund/gobychat/cmd/chatctl/cmd"

func main() {
	cmd.Execute()
}

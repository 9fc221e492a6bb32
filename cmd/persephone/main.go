package main

import "github.com/tartarus-sandbox/persephone/cmd/persephone/cmd"

func main() {
	cmd.Execute()
}

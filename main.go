package main

import "github.com/melkeydev/db-export/cmd"

func main() {
	cmd.Execute()
}

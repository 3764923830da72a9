package main

import "github.com/lgn-platform/lgn-api/cmd/server/cmd"

func main() {
	cmd.Execute()
}

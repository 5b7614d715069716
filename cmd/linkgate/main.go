package main

import "github.com/linkgate/linkgate/cmd/linkgate/cmd"

func main() {
	cmd.Execute()
}

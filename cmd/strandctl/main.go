package main

import "github.com/strandauth/strand/cmd/strandctl/cmd"

func main() {
	cmd.Execute()
}

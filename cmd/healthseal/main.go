package main

import "github.com/jmcleod/healthseal/cmd/healthseal/cmd"

func main() {
	cmd.Execute()
}

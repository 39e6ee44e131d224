package main

import "github.com/sarchlab/gvt/cmd"

func main() {
	cmd.Execute()
}

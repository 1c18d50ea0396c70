package main

import "github.com/Norgate-AV/incbuild/cmd"

func main() {
	cmd.Execute()
}

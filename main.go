package main

import "github.com/nextlevelbuilder/goturn/cmd"

func main() {
	cmd.Execute()
}

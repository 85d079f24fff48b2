package main

import "github.com/nextlevelbuilder/skillbase/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/adminkit/apiserver/cmd"

func main() {
	cmd.Execute()
}

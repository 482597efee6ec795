package main

import "github.com/andresmejia3/docmask/cmd"

func main() {
	cmd.Execute()
}

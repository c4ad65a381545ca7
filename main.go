package main

import "github.com/fjmorton/trackforge/cmd"

func main() {
	cmd.Execute()
}

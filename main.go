package main

import "github.com/netlayer/igmphost/cmd"

func main() {
	cmd.Execute()
}

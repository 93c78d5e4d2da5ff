package main

import "idchip_reader/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/piyush-mk/NeoFi-Backend-API/cmd/server/cmd"

func main() {
	cmd.Execute()
}

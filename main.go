package main

import "github.com/mselser95/mempool-engine/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/jmehdipour/wallet-notifier/cmd"

func main() {
	cmd.Execute()
}

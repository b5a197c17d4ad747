package main

import "github.com/Bilal2742/Crypto-bot/internal/cli"

func main() {
	cli.Execute()
}

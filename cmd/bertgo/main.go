package main

import (
	"github.com/bertgo/bertgo"
)

func main() {
	bertgo.InitializeCommand()
}

package main

import (
	"github.com/EnzoPontoniDev/Alvl-Bot/cmd"
)

func main() {
	cmd.Execute()
}

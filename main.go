package main

import (
	"log"

	"github.com/TheeGreenGenie/ticket-leader/cmd"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}

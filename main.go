package main

import (
	"os"

	"github.com/adamsaleh11/DroneSystem/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

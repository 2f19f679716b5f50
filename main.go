package main

import (
	"fmt"
	"os"

	"github.com/drewjocham/parsemodel/internal/cli"
	"github.com/drewjocham/parsemodel/models"
)

func main() {
	if err := cli.Execute(models.Register); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

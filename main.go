package main

import (
	"context"
	"log"
	"os"

	"github.com/cppla/sharebox/cmd"
)

func main() {
	if err := cmd.Root().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/shortontech/botgate/internal/cli"
)

func main() {
	if err := cli.New().Execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "botgate:", err)
		os.Exit(1)
	}
}

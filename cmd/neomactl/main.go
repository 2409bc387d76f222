package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/neoma/internal/server/cli"
)

func main() {
	if err := cli.NewRootCmd(cli.DefaultEnv(os.Stdout)).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

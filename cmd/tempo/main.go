package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/mart337i/Tempo/internal/cli"
)

var loadDotenv = godotenv.Load

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// Variables already present in the environment take precedence over .env.
	if err := loadDotenv(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "%s: failed to load .env: %v\n", cli.Prog, err)
		return 1
	}
	return cli.Dispatch(context.Background(), args)
}

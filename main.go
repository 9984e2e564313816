package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"gatego/cmd"
	"gatego/runner"
)

const usage = `gatego [command] [flags]

Commands:
   run      run the quality gate (default)
   list     print the checks the gate would run
   watch    re-run the gate whenever the workspace changes
   serve    serve the run history API
`

func main() {
	// Load .env file if it exists (ignore errors if it doesn't)
	_ = godotenv.Load()

	command := "run"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	switch command {
	case "run":
		os.Exit(cmd.Run(args))
	case "list":
		os.Exit(cmd.List(args))
	case "watch":
		os.Exit(cmd.Watch(args))
	case "serve":
		if err := cmd.Serve(args); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case "help":
		fmt.Print(usage)
	default:
		fmt.Fprintln(os.Stderr, "Unknown command:", command)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(runner.StatusRunnerError)
	}
}

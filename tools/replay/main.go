package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"go.temporal.io/sdk/worker"

	"github.com/fathomlabs/fathom/internal/workflows"
)

// Replays a recorded workflow history against the current workflow code.
// Fails on any non-deterministic change, which is the check to run before
// deploying a modified workflow over in-flight sessions.
func main() {
	historyPath := flag.String("history", "", "Path to Temporal workflow history JSON (from temporal workflow show --output json)")
	flag.Parse()

	if *historyPath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay -history /path/to/history.json")
		os.Exit(2)
	}

	replayer := worker.NewWorkflowReplayer()
	replayer.RegisterWorkflow(workflows.DeepResearchWorkflow)

	if err := replayer.ReplayWorkflowHistoryFromJSONFile(nil, *historyPath); err != nil {
		log.Fatalf("Replay failed (non-deterministic change or invalid history): %v", err)
	}
	log.Printf("Replay succeeded for %s", *historyPath)
}

package builtin

import (
	"context"
	"strings"

	"github.com/B-A-M-N/amnesic/internal/driver"
)

// workerSystemPrompt mirrors the Python reference's Worker role: a single
// sub-task executor distinct from the Proposer's plan-level reasoning.
const workerSystemPrompt = "You are a precise sub-task executor. Perform exactly the requested task using only the given context. Do not invent facts, do not add commentary, and do not wrap output in markdown fences unless asked."

// runWorker delegates one bounded sub-task to the Driver, grounded on
// session.py's Worker.execute_task — a single GenerateRaw round-trip with
// the active L1 context and a constraint list appended to the prompt.
func runWorker(ctx context.Context, drv driver.Driver, task, activeContext string, constraints []string) (string, error) {
	var sb strings.Builder
	sb.WriteString("TASK: ")
	sb.WriteString(task)
	if activeContext != "" {
		sb.WriteString("\n\nCONTEXT:\n")
		sb.WriteString(activeContext)
	}
	if len(constraints) > 0 {
		sb.WriteString("\n\nCONSTRAINTS:\n")
		for _, c := range constraints {
			sb.WriteString("- ")
			sb.WriteString(c)
			sb.WriteString("\n")
		}
	}

	out, err := drv.GenerateRaw(ctx, workerSystemPrompt, sb.String())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

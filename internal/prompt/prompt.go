// Package prompt builds the worker prompts for planning and agent
// execution. Both resume a clone of the parent session, so the prompts
// lean on the conversation history instead of restating it.
package prompt

import (
	"fmt"
	"strings"
)

// Plan returns the planning prompt that asks the worker to design the
// agent roster for a task. The task may be empty, in which case the worker
// works purely from the conversation history.
func Plan(task string) string {
	var b strings.Builder

	if strings.TrimSpace(task) != "" {
		fmt.Fprintf(&b, "User task: %s\n\n", task)
	}

	b.WriteString(`Based on the user's request in the conversation so far, judge the task's complexity and design a fitting roster of specialist roles to tackle it together.

Pick the agent count by complexity:
- Simple task: 2-3 agents (single feature)
- Medium task: 4-6 agents (small system)
- Complex task: 7-10 agents (full project)
- Very large task: 10-15 agents (enterprise-scale system)

Output the agent configuration as a JSON array, for example:
[
  {
    "id": "01",
    "name": "System Architect",
    "role": "Design the overall architecture and module boundaries"
  },
  {
    "id": "02",
    "name": "Backend Engineer",
    "role": "Implement the core business logic"
  },
  {
    "id": "03",
    "name": "Frontend Engineer",
    "role": "Implement the user interface"
  }
]

Rules:
- Choose the agent count by task complexity (2-15)
- Number ids consecutively starting at "01" (01, 02, 03...)
- Give every role a clear specialty with no overlap
- Split the roles the way a real project team would
- Output ONLY the JSON array, nothing else
`)

	return b.String()
}

// Role returns one agent's execution prompt.
func Role(name, role string) string {
	return fmt.Sprintf(`Your role: %s - %s

Based on the user's request in the conversation so far, implement the solution from your specialty's point of view.
Start writing code right away; your work is committed automatically when you finish.
`, name, role)
}

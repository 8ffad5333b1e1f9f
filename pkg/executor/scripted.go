package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/supremeagent/promptrunner/pkg/api"
)

// ScriptedExecutor plays back a fixed plan derived from the keywords of its input.
type ScriptedExecutor struct {
	tools []Tool
	delay time.Duration
}

// NewScripted creates a scripted executor. An empty tool list selects DefaultTools.
func NewScripted(opts ScriptOptions) *ScriptedExecutor {
	tools := opts.Tools
	if len(tools) == 0 {
		tools = DefaultTools()
	}
	return &ScriptedExecutor{tools: tools, delay: opts.StepDelay}
}

// NewScriptedFactory returns a factory of scripted executors.
func NewScriptedFactory(opts ScriptOptions) Factory {
	return FactoryFunc(func() (Executor, error) {
		return NewScripted(opts), nil
	})
}

// Plan returns the tools input triggers, in table order.
func (e *ScriptedExecutor) Plan(input string) []Tool {
	words := strings.FieldsFunc(strings.ToLower(input), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		seen[w] = true
	}

	var matched []Tool
	for _, tool := range e.tools {
		for _, kw := range tool.Keywords {
			if seen[strings.ToLower(kw)] {
				matched = append(matched, tool)
				break
			}
		}
	}
	return matched
}

func (e *ScriptedExecutor) Execute(ctx context.Context, input string, emit func(api.ProgressRecord)) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrInputRequired
	}

	step := func(rec api.ProgressRecord) error {
		if e.delay > 0 {
			timer := time.NewTimer(e.delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		emit(rec)
		return nil
	}

	if err := step(api.ProgressRecord{Response: "Parsing request"}); err != nil {
		return "", err
	}

	plan := e.Plan(input)
	names := make([]string, 0, len(plan))
	for _, tool := range plan {
		if err := step(api.ProgressRecord{StepType: api.StepExecuteAction, ExecutedActionID: tool.Name}); err != nil {
			return "", err
		}
		if err := step(api.ProgressRecord{Response: "Finished " + tool.Name}); err != nil {
			return "", err
		}
		names = append(names, tool.Name)
	}

	final := "Done: " + input
	if len(names) > 0 {
		final = fmt.Sprintf("Done: %s (%s)", input, strings.Join(names, ", "))
	}
	if err := step(api.ProgressRecord{Response: final, StepType: api.StepPlanFinalResponse}); err != nil {
		return "", err
	}
	return final, nil
}

package executor

import "time"

// Scripted is the name the scripted executor registers under.
const Scripted = "scripted"

// Tool is an action the scripted executor performs when one of its keywords
// occurs in the input.
type Tool struct {
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// ScriptOptions configures the scripted executor.
type ScriptOptions struct {
	Tools []Tool
	// StepDelay is waited before every emitted record.
	StepDelay time.Duration
}

// DefaultTools returns the tool table used when none is configured.
func DefaultTools() []Tool {
	return []Tool{
		{Name: "send_email", Keywords: []string{"email", "mail", "send"}},
		{Name: "create_calendar_event", Keywords: []string{"calendar", "meeting", "schedule"}},
		{Name: "upload_to_drive", Keywords: []string{"drive", "upload", "file"}},
		{Name: "generate_report", Keywords: []string{"report", "summary", "summarize"}},
		{Name: "post_to_slack", Keywords: []string{"slack", "channel"}},
	}
}

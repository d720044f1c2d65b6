package topics

// Uncategorized is the branch label for interactions matching no topic.
const Uncategorized = "uncategorized"

// vocabulary is the closed topic dictionary. It is loaded once and never
// mutated at runtime so every component agrees on the same categories.
var vocabulary = map[string][]string{
	"coding": {
		"code", "function", "class", "implement", "refactor", "variable",
		"method", "library", "module", "api", "snippet",
	},
	"debugging": {
		"debug", "error", "bug", "issue", "problem", "troubleshoot",
		"fix", "crash", "stacktrace", "exception", "failing",
	},
	"deployment": {
		"deploy", "deployment", "release", "rollout", "docker", "container",
		"kubernetes", "production", "staging", "pipeline", "ci",
	},
	"testing": {
		"test", "tests", "testing", "coverage", "assert", "mock",
		"regression", "unit", "integration", "benchmark",
	},
	"architecture": {
		"architecture", "design", "structure", "pattern", "component",
		"interface", "layer", "dependency", "scalability",
	},
	"documentation": {
		"document", "documentation", "readme", "docs", "comment",
		"changelog", "guide", "tutorial",
	},
	"project_management": {
		"plan", "planning", "milestone", "roadmap", "task", "sprint",
		"deadline", "priority", "backlog", "scope",
	},
	"data_analysis": {
		"data", "query", "dataset", "metric", "analysis", "report",
		"statistics", "aggregate", "visualization", "schema",
	},
	"user_experience": {
		"ui", "ux", "interface", "usability", "layout", "frontend",
		"accessibility", "responsive", "styling",
	},
	"system_administration": {
		"server", "config", "configuration", "install", "permission",
		"network", "monitoring", "backup", "logging", "os",
	},
}

// Labels returns the closed vocabulary labels in lexical order,
// excluding Uncategorized.
func Labels() []string {
	return append([]string(nil), sortedLabels...)
}

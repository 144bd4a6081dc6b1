package validate

import "slices"

// DefaultCommand is resolved through PATH when no validator path is set.
const DefaultCommand = "cfn-lint"

// DefaultSource labels published diagnostics.
const DefaultSource = "cfn-lint"

// Settings is the validator configuration held in memory.
type Settings struct {
	Path        string
	IgnoreRules []string
	AppendRules []string
}

// Command returns the configured path or DefaultCommand when it is empty.
func (s Settings) Command() string {
	if s.Path == "" {
		return DefaultCommand
	}
	return s.Path
}

// Args builds the validator arguments for file.
func (s Settings) Args(file string) []string {
	args := []string{"--format", "json", "--template", file}
	for _, rule := range s.IgnoreRules {
		if rule != "" {
			args = append(args, "--ignore-checks", rule)
		}
	}
	for _, dir := range s.AppendRules {
		if dir != "" {
			args = append(args, "--append-rules", dir)
		}
	}
	return args
}

func (s Settings) clone() Settings {
	return Settings{
		Path:        s.Path,
		IgnoreRules: slices.Clone(s.IgnoreRules),
		AppendRules: slices.Clone(s.AppendRules),
	}
}

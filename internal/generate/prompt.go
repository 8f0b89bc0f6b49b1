package generate

import (
	"fmt"
	"strings"
)

// DefaultDocStyles is the doc comment style asked for, per language.
var DefaultDocStyles = map[string]string{
	"python": "Google Style",
	"go":     "Go doc comment",
}

var languageTitles = map[string]string{
	"python": "Python",
	"go":     "Go",
}

// docStyle returns styles[language], then DefaultDocStyles[language], then "Google Style".
func docStyle(styles map[string]string, language string) string {
	if s := styles[language]; s != "" {
		return s
	}
	if s := DefaultDocStyles[language]; s != "" {
		return s
	}
	return "Google Style"
}

// SystemPrompt returns the system message for documenting a function written in language using the given doc comment style.
func SystemPrompt(language, style string) string {
	title := languageTitles[language]
	if title == "" {
		title = language
	}
	return fmt.Sprintf("You are an expert technical writer for a software company. You will be given the source code for a %s function. "+
		"If the function does NOT already provide a docstring, provide a %s docstring that is grammatically correct and accurately describes the input function. "+
		"The docstring should be terse and to the point only clarifying information that would be confusing to a mid level engineer. "+
		"The docstring must be the only text in the response. Keep each line length to less than 80 characters. "+
		"If there is already a docstring in the function the response should be empty.", title, style)
}

// UserPrompt fences functionText as a single code block.
func UserPrompt(functionText string) string {
	return "```\n" + functionText + "\n```"
}

// declined are answers that mean "no doc comment", compared case-insensitively.
var declined = []string{"NONE", "ERROR", "N/A", `""""""`}

// sanitize trims the reply, unwraps a single surrounding markdown code fence, and maps answers that decline to "".
func sanitize(reply string) string {
	reply = strings.TrimSpace(reply)

	if strings.HasPrefix(reply, "```") && strings.HasSuffix(reply, "```") && len(reply) >= 6 {
		inner := strings.TrimSuffix(reply, "```")
		if nl := strings.IndexByte(inner, '\n'); nl >= 0 {
			// Drop the opening fence line, including any info string (ex: ```python).
			reply = strings.TrimSpace(inner[nl+1:])
		} else {
			reply = strings.TrimSpace(strings.TrimPrefix(inner, "```"))
		}
	}

	for _, d := range declined {
		if strings.EqualFold(reply, d) {
			return ""
		}
	}
	return reply
}

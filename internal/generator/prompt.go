package generator

import (
	"fmt"
	"strings"
)

// Prompt is one system plus user message pair sent to the model.
type Prompt struct {
	System string
	User   string
}

// BuildPrompt assembles the prompt for one attempt. examples are shown as
// style references the model is told not to copy.
func BuildPrompt(subject, technique string, examples []string, factoid string) Prompt {
	var b strings.Builder

	fmt.Fprintf(&b, "You write short, original roast jokes about %s.\n\n", subject)
	fmt.Fprintf(&b, "Your comedy style: %s\n\n", technique)

	if len(examples) == 1 {
		b.WriteString("Here is one example of the style (DO NOT copy or paraphrase this, write something completely new):\n")
	} else {
		b.WriteString("Here are examples of the style (DO NOT copy or paraphrase these, write something completely new):\n")
	}
	for _, ex := range examples {
		b.WriteString("- ")
		b.WriteString(ex)
		b.WriteString("\n")
	}

	b.WriteString("\nRules:\n")
	b.WriteString("- Write ONE new joke. Just the joke text, nothing else.\n")
	b.WriteString("- Your joke MUST be original. Do NOT reuse phrases or structure from the examples.\n")
	b.WriteString("- Use the factoid below as inspiration, but transform it into humor instead of restating it.\n\n")
	b.WriteString("/no_think")

	return Prompt{
		System: b.String(),
		User:   "Write a roast joke using this fact: " + factoid,
	}
}

// Package prompt composes system instructions from persona, explicit
// instruction, and free-text context blocks.
package prompt

import (
	"fmt"
	"strings"

	"agentd/pkg/proto"
)

// Build composes the system instruction from up to three blocks, in fixed
// order: persona envelope, instruction wrapper, context wrapper. A block is
// omitted entirely when its source is absent or its include flag is false;
// absent inputs reduce the output, down to an empty string. Non-empty blocks
// are joined with a blank line.
func Build(instruction string, includePersona, includeContext bool, persona *proto.Persona, contextText string) string {
	var blocks []string

	if includePersona && persona != nil {
		blocks = append(blocks, renderPersona(persona))
	}
	if instruction != "" {
		blocks = append(blocks, fmt.Sprintf("<instruction>\n%s\n</instruction>", instruction))
	}
	if includeContext && contextText != "" {
		blocks = append(blocks, fmt.Sprintf("<context>\n%s\n</context>", contextText))
	}

	return strings.Join(blocks, "\n\n")
}

// renderPersona renders the persona envelope. A persona with no attributes
// still yields an empty envelope.
func renderPersona(persona *proto.Persona) string {
	var sb strings.Builder
	sb.WriteString("<persona>")

	if persona.Name != "" {
		sb.WriteString(fmt.Sprintf("\nName: %s", persona.Name))
	}
	if persona.BusinessContext != "" {
		sb.WriteString(fmt.Sprintf("\n<business_context>\n%s\n</business_context>", persona.BusinessContext))
	}
	if persona.ToneOfVoice != "" {
		sb.WriteString(fmt.Sprintf("\n<tone_of_voice>\n%s\n</tone_of_voice>", persona.ToneOfVoice))
	}

	sb.WriteString("\n</persona>")
	return sb.String()
}

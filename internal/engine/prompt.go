package engine

import (
	"bytes"
	"fmt"
	"os"
)

var bom = []byte{0xEF, 0xBB, 0xBF}

// LoadPrompt reads the shared system prompt from path, tolerating a UTF-8
// byte order mark. Some editors prepend one silently.
func LoadPrompt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("load prompt %s: %w", path, err)
	}
	return string(bytes.TrimPrefix(data, bom)), nil
}

// BuildUserMessage combines the system prompt with the request document.
// The request JSON rides in a fenced block so the agent can find it
// regardless of what the prompt says around it.
func BuildUserMessage(prompt string, rawRequest []byte) string {
	var b bytes.Buffer
	b.WriteString(prompt)
	if len(prompt) > 0 && prompt[len(prompt)-1] != '\n' {
		b.WriteByte('\n')
	}
	b.WriteString("\nHere is your task request:\n\n```json\n")
	b.Write(bytes.TrimRight(rawRequest, "\n"))
	b.WriteString("\n```\n")
	return b.String()
}

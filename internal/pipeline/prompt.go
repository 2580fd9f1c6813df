package pipeline

import (
	"fmt"
	"time"
)

const systemPromptTemplate = `You are a helpful voice AI assistant. The user is speaking to you through a microphone, and your response will be converted into sound and played back to them.
Respond briefly and conversationally, in plain sentences without markdown, lists or emoji.
If the request is unclear or you did not catch it, ask for clarification.
Today's date is %s.
Be concise.`

// SystemInstruction returns the fixed completion instruction for the given day.
func SystemInstruction(now time.Time) string {
	return fmt.Sprintf(systemPromptTemplate, now.UTC().Format("2006-01-02"))
}

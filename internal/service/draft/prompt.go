package draft

import "fmt"

const systemPrompt = "You are a clinical documentation assistant. " +
	"Write a clean SOAP note in English. " +
	"Do not add any information that is not in the transcript. " +
	"If something is missing, write 'Not mentioned'."

const userPromptTemplate = `TRANSCRIPT:
%s

TASK:
Create a SOAP note with the following sections:
S: Subjective
O: Objective
A: Assessment
P: Plan

Return only the SOAP note text.
`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func soapMessages(transcript string) []chatMessage {
	return []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf(userPromptTemplate, transcript)},
	}
}

package model

type Role string

const (
	RoleSystem    Role = "system"
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation history.
type Message struct {
	Role Role
	Text string
}

func HumanMessage(text string) Message {
	return Message{Role: RoleHuman, Text: text}
}

func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Text: text}
}

func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Text: text}
}

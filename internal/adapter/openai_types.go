package adapter

// Chat-completions request types shared by every OpenAI-compatible vendor.

// ChatCompletionRequest is the messages-list body.
type ChatCompletionRequest struct {
	// Model specifies which model to use (e.g. "gpt-4o-mini", "llama-3.3-70b-versatile").
	Model string `json:"model"`

	// Messages holds a single user turn; conversation state is not kept.
	Messages []ChatMessage `json:"messages"`
}

// ChatMessage is one message in a chat-completions body.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

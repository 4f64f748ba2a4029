package mocks

// ChatMessage is one message of an OpenAI-compatible chat request or response
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the subset of the chat completion request the mock inspects
type ChatRequest struct {
	Model          string        `json:"model"`
	Messages       []ChatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

// ChatChoice is one completion choice
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatUsage reports token counts
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is an OpenAI-compatible chat completion
type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   ChatUsage    `json:"usage"`
}

// Signal is the advisor payload the mock returns as the completion content
type Signal struct {
	Symbol            string   `json:"symbol"`
	Action            string   `json:"action"`
	Confidence        float64  `json:"confidence"`
	Reasoning         string   `json:"reasoning"`
	SuggestedQuantity *float64 `json:"suggestedQuantity,omitempty"`
	TargetPrice       *float64 `json:"targetPrice,omitempty"`
	StopLoss          *float64 `json:"stopLoss,omitempty"`
}

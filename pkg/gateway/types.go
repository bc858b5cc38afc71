package gateway

// clientMessage is one inbound websocket frame.
type clientMessage struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	Model     string `json:"model,omitempty"`
	Streaming *bool  `json:"streaming,omitempty"`
}

// modelInfo is one entry in the models listing.
type modelInfo struct {
	ID            string `json:"id"`
	Provider      string `json:"provider"`
	Name          string `json:"name"`
	ContextWindow int    `json:"context_window"`
	SupportsTools bool   `json:"supports_tools"`
}

type modelsResponse struct {
	Default string      `json:"default"`
	Models  []modelInfo `json:"models"`
}

type createConversationRequest struct {
	ID    string `json:"id"`
	Model string `json:"model,omitempty"`
}

type deleteResponse struct {
	Deleted bool `json:"deleted"`
}

type errorResponse struct {
	Error string `json:"error"`
}

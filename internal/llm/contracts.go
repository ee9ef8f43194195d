package llm

import "context"

// ChatRequest is one structured-output call to an inference endpoint. Model
// parameters (temperature, context window, stop markers) belong to the client
// configuration and are the same for every request.
type ChatRequest struct {
	System string
	User   string
	// Schema is the JSON-Schema the response content must conform to.
	Schema map[string]any
}

// ChatResponse carries the assistant content as returned by the endpoint.
type ChatResponse struct {
	Model   string
	Content []byte
}

// Provider is the inference capability the extraction invoker depends on.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

package core

// Endpoint describes one route of the auth API independent of the HTTP
// framework. Adapters bind a handler per OperationID.
type Endpoint struct {
	Path     string
	Method   string
	Metadata EndpointMetadata
}

type EndpointMetadata struct {
	OperationID string
	Description string
	// Protected endpoints require a valid session.
	Protected bool
}

// ErrorResponse represents an error response structure
type ErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Kind       string `json:"kind,omitempty"`
}

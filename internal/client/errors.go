package client

import "fmt"

// genericMessage is shown when the service gives no usable error text.
const genericMessage = "Server error"

// ServiceError is any failed exchange with the analysis service: transport
// failure, non-success status, or a success body that could not be parsed.
type ServiceError struct {
	// StatusCode is 0 for transport failures.
	StatusCode int
	// Message is the server-provided error text or genericMessage.
	Message string
	Cause   error
}

// Error returns the user-facing message.
func (e *ServiceError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// Detail includes status and cause for logs.
func (e *ServiceError) Detail() string {
	switch {
	case e.Cause != nil && e.StatusCode != 0:
		return fmt.Sprintf("%s (status %d, caused by: %v)", e.Message, e.StatusCode, e.Cause)
	case e.Cause != nil:
		return fmt.Sprintf("%s (caused by: %v)", e.Message, e.Cause)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	}
	return e.Message
}

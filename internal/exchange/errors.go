package exchange

import "fmt"

// NetworkError covers transport-level failures and non-2xx responses from the
// exchange. The underlying transport error, if any, is available via Unwrap.
type NetworkError struct {
	Status int
	Body   string
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("deribit network error: %v", e.Err)
	}
	return fmt.Sprintf("deribit network error: HTTP %d: %s", e.Status, e.Body)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// APIError is an explicit business error reported by the exchange in the
// JSON-RPC envelope.
type APIError struct {
	Code    int64
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("deribit api error (code %d): %s", e.Code, e.Message)
}

// ProtocolError indicates a well-transported response whose shape does not
// match the expected envelope.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return "deribit protocol error: " + e.Message
}

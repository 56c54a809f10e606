package conversation

import "errors"

var (
	// ErrNotFound is returned when a conversation does not exist or is not
	// owned by the requesting user. The two cases are deliberately
	// indistinguishable so ownership cannot be probed by ID guessing.
	ErrNotFound = errors.New("conversation not found")

	// ErrInvalidID is returned when a conversation ID fails to parse as a UUID.
	ErrInvalidID = errors.New("invalid conversation ID")

	// ErrInvalidRole is returned when a message role is neither user nor
	// assistant.
	ErrInvalidRole = errors.New("invalid message role")
)

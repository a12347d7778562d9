package models

// Session tags collaborator requests with the viewer identity.
type Session struct {
	UserID    string
	RequestID string
}

package models

// Group is a WhatsApp group the client is joined to
type Group struct {
	ID   string `json:"id"` // Group JID
	Name string `json:"name"`
}

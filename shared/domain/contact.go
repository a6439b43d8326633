package domain

import "time"

// Contact is the counterparty of a conversation. A conversation is identified
// by its contact id.
type Contact struct {
	ID       ID         `json:"_id"`
	Name     string     `json:"name"`
	Phone    string     `json:"phone"`
	Stage    string     `json:"stage"`
	TenantID ID         `json:"tenantId"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

func (c Contact) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Phone
}

type Notification struct {
	ID        ID        `json:"_id"`
	Text      string    `json:"text"`
	Link      string    `json:"link,omitempty"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageNotification is pushed when a message arrives for a contact assigned to a user.
type MessageNotification struct {
	AssignedTo  ID     `json:"assignedTo"`
	ContactName string `json:"contactName"`
	MessageBody string `json:"messageBody"`
}

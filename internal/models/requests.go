package models

import (
	"strings"
	"time"
)

// ClientCreateRequest is the payload for registering a client.
type ClientCreateRequest struct {
	Name           string `json:"name"`
	Niche          string `json:"niche,omitempty"`
	Language       string `json:"language,omitempty"`
	PersonaName    string `json:"persona_name,omitempty"`
	Tone           string `json:"tone,omitempty"`
	Treatment      string `json:"treatment,omitempty"`
	SalesIntensity string `json:"sales_intensity,omitempty"`
	BookingURL     string `json:"booking_url,omitempty"`
}

// Validate validates a ClientCreateRequest.
func (r *ClientCreateRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrEmptyClientName
	}
	return nil
}

// Client converts the request into a Client with defaults applied.
func (r *ClientCreateRequest) Client() Client {
	c := Client{
		Name:           strings.TrimSpace(r.Name),
		Niche:          r.Niche,
		Language:       r.Language,
		PersonaName:    r.PersonaName,
		Tone:           r.Tone,
		Treatment:      r.Treatment,
		SalesIntensity: r.SalesIntensity,
		BookingURL:     strings.TrimSpace(r.BookingURL),
	}
	c.ApplyDefaults()
	return c
}

// DocumentCreateRequest is the payload for adding knowledge to a client.
type DocumentCreateRequest struct {
	FileName string `json:"file_name"`
	Content  string `json:"content"`
}

// Validate validates a DocumentCreateRequest.
func (r *DocumentCreateRequest) Validate() error {
	if r.FileName == "" || r.Content == "" {
		return ErrEmptyDocument
	}
	return nil
}

// AgentToggleRequest switches automatic replies for a client.
type AgentToggleRequest struct {
	Active bool `json:"active"`
}

// ConnectRequest is the payload for linking a channel account to a client.
// For WhatsApp the account id is the Cloud API phone number id, for
// Instagram the business account id.
type ConnectRequest struct {
	ClientID      string `json:"client_id"`
	AccountID     string `json:"account_id"`
	PhoneNumberID string `json:"phone_number_id,omitempty"`
	AccessToken   string `json:"access_token"`
}

// Account returns the trimmed account id, falling back to PhoneNumberID.
func (r *ConnectRequest) Account() string {
	if id := strings.TrimSpace(r.AccountID); id != "" {
		return id
	}
	return strings.TrimSpace(r.PhoneNumberID)
}

// Validate validates a ConnectRequest.
func (r *ConnectRequest) Validate() error {
	if r.ClientID == "" {
		return ErrEmptyClientID
	}
	if r.Account() == "" {
		return ErrEmptyAccountID
	}
	if strings.TrimSpace(r.AccessToken) == "" {
		return ErrEmptyAccessToken
	}
	return nil
}

// LeadRequest identifies a lead for archive and agent activation.
type LeadRequest struct {
	LeadID string `json:"lead_id"`
}

// Validate validates a LeadRequest.
func (r *LeadRequest) Validate() error {
	if r.LeadID == "" {
		return ErrEmptyLeadID
	}
	return nil
}

// SendManualRequest is the payload for a human reply to a lead.
type SendManualRequest struct {
	LeadID      string `json:"lead_id"`
	MessageText string `json:"message_text"`
}

// Validate validates a SendManualRequest.
func (r *SendManualRequest) Validate() error {
	if r.LeadID == "" {
		return ErrEmptyLeadID
	}
	if strings.TrimSpace(r.MessageText) == "" {
		return ErrEmptyMessageText
	}
	return nil
}

// DiscoverRequest carries the audience numbers used to score a lead.
type DiscoverRequest struct {
	LeadID    string `json:"lead_id"`
	Followers int    `json:"followers"`
	Following int    `json:"following"`
}

// Validate validates a DiscoverRequest.
func (r *DiscoverRequest) Validate() error {
	if r.LeadID == "" {
		return ErrEmptyLeadID
	}
	if r.Followers < 0 || r.Following < 0 {
		return ErrNegativeFollowers
	}
	return nil
}

// LeadFilter maps an inbox status filter onto lead states. The bool result
// reports whether the states are excluded rather than included.
func LeadFilter(status string) ([]LeadState, bool) {
	switch status {
	case "pending":
		return []LeadState{LeadStateDiscovered}, false
	case "answered":
		return []LeadState{LeadStateContacted}, false
	case "archived":
		return []LeadState{LeadStateDiscarded}, false
	default:
		return []LeadState{LeadStateDiscarded}, true
	}
}

// InboxLead is a lead with its conversation as shown in the inbox.
type InboxLead struct {
	ID                   string    `json:"id"`
	Username             string    `json:"username"`
	Channel              Channel   `json:"channel"`
	Status               LeadState `json:"status"`
	Messages             []Message `json:"messages"`
	LastMessageText      string    `json:"last_message_text"`
	LastMessageTimestamp time.Time `json:"last_message_timestamp"`
}

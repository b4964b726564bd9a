// Package models defines the core data structures for Forge.
//
// It includes the client, connection, lead, conversation and message records
// shared by the store, the ingestion pipeline and the HTTP API.
package models

import (
	"errors"
	"time"
)

// Channel is a messaging network a client is connected to.
type Channel string

const (
	// ChannelInstagram is Instagram Direct via the Graph API.
	ChannelInstagram Channel = "instagram"
	// ChannelWhatsApp is WhatsApp, via the Cloud API, Twilio or a linked device.
	ChannelWhatsApp Channel = "whatsapp"
)

// IsValidChannel checks if the given channel is supported.
func IsValidChannel(c Channel) bool {
	switch c {
	case ChannelInstagram, ChannelWhatsApp:
		return true
	default:
		return false
	}
}

// LeadState is the pipeline position of a lead.
type LeadState string

const (
	// LeadStateNew is a lead created by an inbound message that nobody has answered yet.
	LeadStateNew LeadState = "nuevo"
	// LeadStateDiscovered is a lead that scored high enough to pursue.
	LeadStateDiscovered LeadState = "descubierto"
	// LeadStateContacted is a lead that received a reply from an agent or a human.
	LeadStateContacted LeadState = "contactado"
	// LeadStateDiscarded is an archived or low-value lead.
	LeadStateDiscarded LeadState = "descartado"
)

// IsValidLeadState checks if the given lead state is known.
func IsValidLeadState(s LeadState) bool {
	switch s {
	case LeadStateNew, LeadStateDiscovered, LeadStateContacted, LeadStateDiscarded:
		return true
	default:
		return false
	}
}

// Direction tells whether a message came from the lead or went to it.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// SenderType identifies who authored a message.
type SenderType string

const (
	SenderLead  SenderType = "lead"
	SenderAgent SenderType = "agent"
	SenderHuman SenderType = "human"
)

// MessageStatus represents the delivery status of a message.
type MessageStatus string

const (
	// MessageStatusReceived marks an inbound message.
	MessageStatusReceived MessageStatus = "received"
	// MessageStatusQueued marks an outbound message waiting in the outbox.
	MessageStatusQueued MessageStatus = "queued"
	// MessageStatusSent indicates the message was sent.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusDelivered indicates the message was delivered.
	MessageStatusDelivered MessageStatus = "delivered"
	// MessageStatusRead indicates the message was read.
	MessageStatusRead MessageStatus = "read"
	// MessageStatusFailed indicates the message failed to send.
	MessageStatusFailed MessageStatus = "failed"
)

// ConnectionStatus is the health of a channel connection.
type ConnectionStatus string

const (
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionDisconnected ConnectionStatus = "disconnected"
)

// Defaults applied to new clients.
const (
	DefaultLanguage       = "es"
	DefaultPersonaName    = "Equipo"
	DefaultTone           = "amigable"
	DefaultTreatment      = "tuteo"
	DefaultSalesIntensity = "media"
)

// Error variables for better error handling and testability
var (
	ErrEmptyClientName   = errors.New("name is required")
	ErrEmptyClientID     = errors.New("client_id is required")
	ErrEmptyLeadID       = errors.New("lead_id is required")
	ErrEmptyMessageText  = errors.New("message_text is required")
	ErrEmptyDocument     = errors.New("file_name and content are required")
	ErrEmptyAccountID    = errors.New("account id is required")
	ErrEmptyAccessToken  = errors.New("access_token is required")
	ErrNegativeFollowers = errors.New("followers must not be negative")
)

// Client is a brand whose inbox Forge manages.
type Client struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Niche          string    `json:"niche,omitempty"`
	Language       string    `json:"language"`
	PersonaName    string    `json:"persona_name"`
	Tone           string    `json:"tone"`
	Treatment      string    `json:"treatment"`
	SalesIntensity string    `json:"sales_intensity"`
	BookingURL     string    `json:"booking_url,omitempty"`
	AgentActive    bool      `json:"agent_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ApplyDefaults fills unset persona fields.
func (c *Client) ApplyDefaults() {
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.PersonaName == "" {
		c.PersonaName = DefaultPersonaName
	}
	if c.Tone == "" {
		c.Tone = DefaultTone
	}
	if c.Treatment == "" {
		c.Treatment = DefaultTreatment
	}
	if c.SalesIntensity == "" {
		c.SalesIntensity = DefaultSalesIntensity
	}
}

// Validate checks the client has the fields the store requires.
func (c *Client) Validate() error {
	if c.Name == "" {
		return ErrEmptyClientName
	}
	return nil
}

// Connection links a channel account (a WhatsApp phone number id or an
// Instagram business account id) to a client.
type Connection struct {
	ID          string           `json:"id"`
	ClientID    string           `json:"client_id"`
	Channel     Channel          `json:"channel"`
	AccountID   string           `json:"account_id"`
	AccessToken string           `json:"-"`
	Status      ConnectionStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Document is a piece of brand knowledge fed to the chat agent.
type Document struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	FileName  string    `json:"file_name"`
	DocType   string    `json:"doc_type"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Lead is a prospect talking to a client on one channel. Instagram leads are
// keyed by IGUserID, WhatsApp leads by PhoneE164.
type Lead struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	Channel   Channel   `json:"channel"`
	IGUserID  string    `json:"ig_user_id,omitempty"`
	WAUserID  string    `json:"wa_user_id,omitempty"`
	PhoneE164 string    `json:"phone_e164,omitempty"`
	Username  string    `json:"username,omitempty"`
	Name      string    `json:"name,omitempty"`
	State     LeadState `json:"state"`
	Followers int       `json:"followers"`
	Following int       `json:"following"`
	Score     float64   `json:"score"`
	Segment   string    `json:"segment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExternalID returns the channel-specific identity used to address the lead.
func (l *Lead) ExternalID() string {
	if l.Channel == ChannelWhatsApp {
		return l.PhoneE164
	}
	return l.IGUserID
}

// DisplayName returns the best available human label for the lead.
func (l *Lead) DisplayName() string {
	switch {
	case l.Username != "":
		return l.Username
	case l.Name != "":
		return l.Name
	default:
		return "Unknown"
	}
}

// Conversation is the thread between a client and a lead on one channel.
type Conversation struct {
	ID             string     `json:"id"`
	ClientID       string     `json:"client_id"`
	LeadID         string     `json:"lead_id"`
	Channel        Channel    `json:"channel"`
	LastMessage    string     `json:"last_message"`
	LastSenderType SenderType `json:"last_sender_type"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Message is one stored message in a conversation.
type Message struct {
	ID                string        `json:"id"`
	ConversationID    string        `json:"conversation_id"`
	LeadID            string        `json:"lead_id"`
	ClientID          string        `json:"client_id"`
	Channel           Channel       `json:"channel"`
	ExternalMessageID string        `json:"external_message_id,omitempty"`
	Direction         Direction     `json:"direction"`
	SenderType        SenderType    `json:"sender_type"`
	Text              string        `json:"text"`
	MessageType       string        `json:"message_type"`
	Status            MessageStatus `json:"status"`
	Metadata          string        `json:"-"`
	Timestamp         time.Time     `json:"timestamp"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}

// Package mock provides test doubles for the Discord layer.
package mock

import (
	"sync"

	"github.com/bwmarrin/discordgo"
)

// SentMessage records one ChannelMessageSend call.
type SentMessage struct {
	ChannelID string
	Content   string
}

// MessageSender records posted messages for test assertions.
type MessageSender struct {
	mu sync.Mutex

	// Err, if non-nil, is returned by every ChannelMessageSend call.
	Err error

	// Sent records every call in order.
	Sent []SentMessage
}

// ChannelMessageSend records the message and returns the configured error.
func (m *MessageSender) ChannelMessageSend(channelID string, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Sent = append(m.Sent, SentMessage{ChannelID: channelID, Content: content})
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Message{ID: "mock-message"}, nil
}

// Last returns the most recently sent message, or a zero value.
func (m *MessageSender) Last() SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return SentMessage{}
	}
	return m.Sent[len(m.Sent)-1]
}

// Count returns the number of sent messages.
func (m *MessageSender) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

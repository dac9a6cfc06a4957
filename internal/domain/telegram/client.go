package telegram

import "gopkg.in/telebot.v3"

// Client is the transport used to deliver messages to a chat. It decouples
// the application logic from the concrete bot library; a send failure for
// one chat must not affect sends to other chats.
type Client interface {
	SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error
}

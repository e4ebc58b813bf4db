package transport

import (
	"context"
	"errors"
)

// ErrTopicNotFound is returned by TopicAdapter.DeleteTopic when the platform
// no longer knows the topic.
var ErrTopicNotFound = errors.New("topic not found")

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
	IsPrivate    bool
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// Chat returns the target without its thread, i.e. the chat itself.
func (t ChatTarget) Chat() ChatTarget { return ChatTarget{ChatID: t.ChatID} }

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

type Notification struct {
	Target  ChatTarget
	Text    string
	Options *SendOptions
	// Key identifies the message for dedup; empty means a hash of target and text.
	Key string
}

// Adapter is a chat platform connection.
type Adapter interface {
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// TopicAdapter is implemented by adapters whose chats can hold named
// sub-channels (Telegram forum topics).
type TopicAdapter interface {
	CreateTopic(ctx context.Context, chatID int64, name string) (threadID int, err error)
	DeleteTopic(ctx context.Context, chatID int64, threadID int) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface adapters can implement to
// publish the bot command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}

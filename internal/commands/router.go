// Package commands routes chat commands to handlers.
package commands

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"nhlbot/internal/runtime/supervisor"
	"nhlbot/internal/transport"
	"nhlbot/pkg/logx"
)

var ErrBusy = errors.New("command queue full")

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Timeout     time.Duration
	Handle      HandlerFunc
}

type Request struct {
	Msg  transport.Message
	Chat transport.ChatTarget
	Name string
	Args []string
	Log  logx.Logger

	sender transport.Adapter
}

// Reply sends text back to the chat and thread the command came from.
func (r *Request) Reply(ctx context.Context, text string) {
	if _, err := r.sender.SendText(ctx, r.Chat, text, &transport.SendOptions{DisablePreview: true}); err != nil {
		r.Log.Warn("reply failed", logx.Err(err))
	}
}

type RouterConfig struct {
	Workers        int
	QueueSize      int
	DefaultTimeout time.Duration
}

func (c RouterConfig) withDefaults() RouterConfig {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 15 * time.Second
	}
	return c
}

type Router struct {
	cfg     RouterConfig
	adapter transport.Adapter
	log     logx.Logger

	mu    sync.RWMutex
	cmds  map[string]*Command
	names []string // canonical, sorted

	jobs chan func(context.Context)
}

func NewRouter(cfg RouterConfig, adapter transport.Adapter, log logx.Logger) *Router {
	cfg = cfg.withDefaults()
	return &Router{
		cfg:     cfg,
		adapter: adapter,
		log:     log.With(logx.String("comp", "commands")),
		cmds:    map[string]*Command{},
		jobs:    make(chan func(context.Context), cfg.QueueSize),
	}
}

// Register replaces the command set and adds /help.
func (r *Router) Register(cmds ...Command) {
	m := map[string]*Command{}
	var names []string
	add := func(c Command) {
		cc := c
		name := strings.ToLower(cc.Name)
		m[name] = &cc
		names = append(names, name)
		for _, a := range cc.Aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				if _, taken := m[a]; !taken {
					m[a] = &cc
				}
			}
		}
	}
	for _, c := range cmds {
		if c.Name == "" || c.Handle == nil {
			continue
		}
		add(c)
	}
	add(Command{
		Name:        "help",
		Aliases:     []string{"h"},
		Description: "list commands",
		Usage:       "/help",
		Handle: func(ctx context.Context, req *Request) error {
			req.Reply(ctx, r.helpText())
			return nil
		},
	})
	sort.Strings(names)

	r.mu.Lock()
	r.cmds = m
	r.names = names
	r.mu.Unlock()
}

// Menu is the command list for the platform menu.
func (r *Router) Menu() []transport.BotCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]transport.BotCommand, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, transport.BotCommand{Command: n, Description: r.cmds[n].Description})
	}
	return out
}

func (r *Router) helpText() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lines := []string{"Commands:"}
	for _, n := range r.names {
		c := r.cmds[n]
		usage := c.Usage
		if usage == "" {
			usage = "/" + n
		}
		lines = append(lines, usage+" - "+c.Description)
	}
	return strings.Join(lines, "\n")
}

// Run dispatches messages from in to a bounded worker pool until ctx is
// done or in is closed.
func (r *Router) Run(ctx context.Context, in <-chan transport.Message) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(r.log))
	for i := 0; i < r.cfg.Workers; i++ {
		sup.GoRestart("commands.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-r.jobs:
					job(c)
				}
			}
		}, 200*time.Millisecond, 5*time.Second)
	}
	r.log.Info("command dispatcher started", logx.Int("workers", r.cfg.Workers))

	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = sup.Stop(wctx)
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			if err := r.Dispatch(ctx, msg); errors.Is(err, ErrBusy) {
				r.reply(ctx, msg, "Busy, try again.")
			}
		}
	}
}

// Dispatch parses msg and queues its handler. Non-command text is ignored.
func (r *Router) Dispatch(ctx context.Context, msg transport.Message) error {
	name, args, ok := parse(msg.Text)
	if !ok {
		return nil
	}
	r.mu.RLock()
	cmd := r.cmds[name]
	r.mu.RUnlock()
	if cmd == nil {
		r.reply(ctx, msg, "Unknown command. Try /help")
		return nil
	}

	req := &Request{
		Msg:  msg,
		Chat: transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		Name: cmd.Name,
		Args: args,
		Log: r.log.With(
			logx.String("rid", newReqID()),
			logx.String("cmd", cmd.Name),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int("thread_id", msg.ThreadID),
			logx.Int64("from_id", msg.FromID),
		),
		sender: r.adapter,
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.cfg.DefaultTimeout
	}
	h := Chain(cmd.Handle, ReplyOnError(), RecoverPanics(), LogRequests(), WithTimeout(timeout))

	select {
	case r.jobs <- func(c context.Context) { _ = h(c, req) }:
		return nil
	default:
		return ErrBusy
	}
}

func (r *Router) reply(ctx context.Context, msg transport.Message, text string) {
	to := transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if _, err := r.adapter.SendText(ctx, to, text, nil); err != nil {
		r.log.Debug("reply failed", logx.Err(err))
	}
}

// parse splits "/cmd@bot a b" into ("cmd", [a b]).
func parse(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text)
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "", nil, false
	}
	return strings.ToLower(name), fields[1:], true
}

func newReqID() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Package bot is the chat front-end: it turns incoming messages into
// pipeline runs and commands.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"auto_wordpress_article_publisher/pipeline"
	"auto_wordpress_article_publisher/publisher"
)

const (
	welcomeMessage = `👋 Welcome to the Article Generator Bot!

I can help you create and publish articles about various topics, optimized for Scotland and Edinburgh.

Simply send me a topic, and I will:
1. Generate an SEO-optimized article
2. Find a relevant image
3. Publish it to WordPress

Try it now - just send me a topic! 📝`

	msgStarting     = "🎨 Starting article generation process..."
	msgBusy         = "⏳ Still working on your previous topic, please wait for it to finish."
	msgQueueFull    = "⏳ The bot is busy with other requests, please try again in a few minutes."
	msgEmptyTopic   = "Please send a topic, for example: best walks around Arthur's Seat"
	msgUnknown      = "Unknown command. Send /help to see what I can do."
	msgShuttingDown = "👋 Shutting down current bot instance..."
	msgNotAllowed   = "Sorry, this bot is private."
	msgNoRuns       = "No articles requested in this chat yet."

	defaultQueue = 16
)

// Incoming is one chat message. Command is set, without the slash, for
// messages that start with a bot command.
type Incoming struct {
	ChatID  int64
	User    string
	Text    string
	Command string
}

// Sender delivers text to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Runner executes one topic.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request, rep pipeline.Reporter) (*pipeline.Run, error)
}

// Options configures a Bot.
type Options struct {
	// AllowedChats limits access; empty allows every chat.
	AllowedChats []int64
	// Stop is called by /kill after the goodbye message is sent.
	Stop   func()
	Queue  int
	Logger *log.Logger
	// Location formats times in /status.
	Location *time.Location
}

// Bot dispatches updates sequentially and runs topics on a single worker, so
// two topics never resolve a slot concurrently.
type Bot struct {
	runner  Runner
	sender  Sender
	stop    func()
	allowed map[int64]bool
	logger  *log.Logger
	loc     *time.Location
	store   *runStore
	jobs    chan pipeline.Request
}

func New(runner Runner, sender Sender, opts Options) (*Bot, error) {
	if runner == nil || sender == nil {
		return nil, errors.New("runner and sender are required")
	}
	if opts.Stop == nil {
		return nil, errors.New("stop function is required")
	}
	if opts.Queue <= 0 {
		opts.Queue = defaultQueue
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	allowed := make(map[int64]bool, len(opts.AllowedChats))
	for _, id := range opts.AllowedChats {
		allowed[id] = true
	}
	return &Bot{
		runner:  runner,
		sender:  sender,
		stop:    opts.Stop,
		allowed: allowed,
		logger:  opts.Logger,
		loc:     opts.Location,
		store:   newStore(),
		jobs:    make(chan pipeline.Request, opts.Queue),
	}, nil
}

// Serve handles updates until ctx is done or updates is closed, then waits
// for the run in progress. Queued topics are dropped on shutdown.
func (b *Bot) Serve(ctx context.Context, updates <-chan Incoming) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.work(ctx)
	}()

	b.logger.Info("bot started")
	defer func() {
		close(b.jobs)
		wg.Wait()
		b.logger.Info("bot stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in, ok := <-updates:
			if !ok {
				return nil
			}
			b.handle(ctx, in)
		}
	}
}

func (b *Bot) work(ctx context.Context) {
	for req := range b.jobs {
		if ctx.Err() != nil {
			b.store.release(req.ChatID)
			continue
		}
		// the runner logs and reports its own failures
		run, _ := b.runner.Run(ctx, req, chatReporter{sender: b.sender, chatID: req.ChatID})
		b.store.finish(req.ChatID, run)
	}
}

func (b *Bot) handle(ctx context.Context, in Incoming) {
	logger := b.logger.With("chat", in.ChatID, "user", in.User)
	if len(b.allowed) > 0 && !b.allowed[in.ChatID] {
		logger.Warn("rejected message from chat outside allow-list")
		b.reply(ctx, in.ChatID, msgNotAllowed)
		return
	}

	switch in.Command {
	case "":
		b.handleTopic(ctx, in, logger)
	case "start", "help":
		b.reply(ctx, in.ChatID, welcomeMessage)
	case "status":
		b.reply(ctx, in.ChatID, b.status(in.ChatID))
	case "kill":
		logger.Warn("shutdown requested from chat")
		b.reply(ctx, in.ChatID, msgShuttingDown)
		b.stop()
	default:
		b.reply(ctx, in.ChatID, msgUnknown)
	}
}

func (b *Bot) handleTopic(ctx context.Context, in Incoming, logger *log.Logger) {
	topic := strings.TrimSpace(in.Text)
	if topic == "" {
		b.reply(ctx, in.ChatID, msgEmptyTopic)
		return
	}
	if !b.store.claim(in.ChatID) {
		b.reply(ctx, in.ChatID, msgBusy)
		return
	}

	// handle is the only producer, so a free slot here stays free until the send below.
	if len(b.jobs) == cap(b.jobs) {
		b.store.release(in.ChatID)
		b.reply(ctx, in.ChatID, msgQueueFull)
		return
	}
	logger.Info("topic accepted", "topic", topic)
	b.reply(ctx, in.ChatID, msgStarting)
	b.jobs <- pipeline.Request{ChatID: in.ChatID, Topic: topic}
}

func (b *Bot) status(chatID int64) string {
	run, ok, busy := b.store.get(chatID)
	var sb strings.Builder
	if busy {
		sb.WriteString("⏳ A topic is being processed right now.\n\n")
	}
	if !ok {
		if busy {
			return strings.TrimSpace(sb.String())
		}
		return msgNoRuns
	}
	sb.WriteString(fmt.Sprintf("Last topic: %s\nState: %s\n", run.Request.Topic, run.State))
	if run.Err != nil {
		sb.WriteString("Error: " + run.Err.Error() + "\n")
	} else {
		sb.WriteString("Title: " + publisher.PlainText(run.Article.Title) + "\n")
		sb.WriteString("URL: " + run.Post.Link + "\n")
		sb.WriteString("Scheduled: " + run.Slot.At.In(b.loc).Format("Mon 2 Jan 2006 15:04 MST") + "\n")
	}
	return strings.TrimSpace(sb.String())
}

// Runs returns the last finished run of every chat.
func (b *Bot) Runs() map[int64]*pipeline.Run {
	return b.store.snapshot()
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.sender.Send(ctx, chatID, text); err != nil {
		b.logger.Warn("failed to send reply", "chat", chatID, "err", err)
	}
}

type chatReporter struct {
	sender Sender
	chatID int64
}

func (r chatReporter) Report(ctx context.Context, text string) error {
	return r.sender.Send(ctx, r.chatID, text)
}

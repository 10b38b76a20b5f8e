package bot

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/charmbracelet/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"auto_wordpress_article_publisher/generator"
	"auto_wordpress_article_publisher/pipeline"
	"auto_wordpress_article_publisher/publisher"
	"auto_wordpress_article_publisher/schedule"
)

type sent struct {
	chatID int64
	text   string
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []sent
	err  error
}

func (f *fakeSender) Send(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sent{chatID, text})
	return f.err
}

func (f *fakeSender) texts(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.msgs {
		if m.chatID == chatID {
			out = append(out, m.text)
		}
	}
	return out
}

type fakeRunner struct {
	mu    sync.Mutex
	reqs  []pipeline.Request
	gate  chan struct{}
	fail  error
	start chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, req pipeline.Request, rep pipeline.Reporter) (*pipeline.Run, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.start != nil {
		f.start <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	_ = rep.Report(ctx, "working on "+req.Topic)
	run := &pipeline.Run{Request: req, State: pipeline.Done}
	if f.fail != nil {
		run.State = pipeline.Failed
		run.Err = f.fail
		return run, f.fail
	}
	return run, nil
}

func newTestBot(t *testing.T, r Runner, s Sender, opts Options) *Bot {
	t.Helper()
	if opts.Stop == nil {
		opts.Stop = func() {}
	}
	opts.Logger = log.New(io.Discard)
	b, err := New(r, s, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

// serve feeds msgs through Serve and waits for the worker to drain.
func serve(t *testing.T, b *Bot, msgs ...Incoming) {
	t.Helper()
	updates := make(chan Incoming, len(msgs))
	for _, m := range msgs {
		updates <- m
	}
	close(updates)
	if err := b.Serve(context.Background(), updates); err != nil {
		t.Fatalf("Serve: %v", err)
	}
}

func TestTopicRunsPipeline(t *testing.T) {
	sender := &fakeSender{}
	runner := &fakeRunner{}
	b := newTestBot(t, runner, sender, Options{})

	serve(t, b, Incoming{ChatID: 7, Text: "  haggis night  "})

	if len(runner.reqs) != 1 || runner.reqs[0].Topic != "haggis night" || runner.reqs[0].ChatID != 7 {
		t.Fatalf("requests = %+v", runner.reqs)
	}
	got := sender.texts(7)
	want := []string{msgStarting, "working on haggis night"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("messages = %q, want %q", got, want)
	}
	if runs := b.Runs(); runs[7] == nil || runs[7].State != pipeline.Done {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestBusyChatIsTurnedAway(t *testing.T) {
	sender := &fakeSender{}
	runner := &fakeRunner{gate: make(chan struct{}), start: make(chan struct{}, 1)}
	b := newTestBot(t, runner, sender, Options{})

	updates := make(chan Incoming)
	done := make(chan error, 1)
	go func() { done <- b.Serve(context.Background(), updates) }()

	updates <- Incoming{ChatID: 1, Text: "first"}
	<-runner.start
	updates <- Incoming{ChatID: 1, Text: "second"}
	updates <- Incoming{ChatID: 1, Command: "status"}
	// Serve handles updates in order, so this returns once the status reply is out.
	updates <- Incoming{ChatID: 99, Command: "help"}
	close(runner.gate)
	close(updates)
	if err := <-done; err != nil {
		t.Fatalf("Serve: %v", err)
	}

	got := sender.texts(1)
	if len(got) != 4 {
		t.Fatalf("messages = %q", got)
	}
	if got[1] != msgBusy {
		t.Fatalf("second topic reply = %q", got[1])
	}
	if !strings.Contains(got[2], "being processed") {
		t.Fatalf("status while busy = %q", got[2])
	}
	if len(runner.reqs) != 1 {
		t.Fatalf("runner called %d times", len(runner.reqs))
	}
}

func TestQueueFull(t *testing.T) {
	sender := &fakeSender{}
	runner := &fakeRunner{gate: make(chan struct{}), start: make(chan struct{}, 1)}
	b := newTestBot(t, runner, sender, Options{Queue: 1})

	updates := make(chan Incoming)
	done := make(chan error, 1)
	go func() { done <- b.Serve(context.Background(), updates) }()

	updates <- Incoming{ChatID: 1, Text: "one"}
	<-runner.start
	updates <- Incoming{ChatID: 2, Text: "two"}
	updates <- Incoming{ChatID: 3, Text: "three"}
	close(updates)
	close(runner.gate)
	if err := <-done; err != nil {
		t.Fatalf("Serve: %v", err)
	}

	if got := sender.texts(3); len(got) != 1 || got[0] != msgQueueFull {
		t.Fatalf("chat 3 messages = %q", got)
	}
	if len(runner.reqs) != 2 {
		t.Fatalf("runner called %d times", len(runner.reqs))
	}
}

func TestCommands(t *testing.T) {
	stopped := 0
	sender := &fakeSender{}
	runner := &fakeRunner{}
	b := newTestBot(t, runner, sender, Options{Stop: func() { stopped++ }})

	serve(t, b,
		Incoming{ChatID: 1, Command: "start"},
		Incoming{ChatID: 2, Command: "help"},
		Incoming{ChatID: 3, Command: "frobnicate"},
		Incoming{ChatID: 4, Text: "   "},
		Incoming{ChatID: 5, Command: "status"},
		Incoming{ChatID: 6, Command: "kill"},
	)

	tests := []struct {
		chat int64
		want string
	}{
		{1, welcomeMessage},
		{2, welcomeMessage},
		{3, msgUnknown},
		{4, msgEmptyTopic},
		{5, msgNoRuns},
		{6, msgShuttingDown},
	}
	for _, tt := range tests {
		got := sender.texts(tt.chat)
		if len(got) != 1 || got[0] != tt.want {
			t.Errorf("chat %d: got %q, want %q", tt.chat, got, tt.want)
		}
	}
	if stopped != 1 {
		t.Fatalf("stop called %d times", stopped)
	}
	if len(runner.reqs) != 0 {
		t.Fatalf("commands must not start runs: %+v", runner.reqs)
	}
}

func TestAllowList(t *testing.T) {
	sender := &fakeSender{}
	runner := &fakeRunner{}
	b := newTestBot(t, runner, sender, Options{AllowedChats: []int64{42}})

	serve(t, b, Incoming{ChatID: 9, Text: "sneaky"}, Incoming{ChatID: 42, Text: "ok"})

	if got := sender.texts(9); len(got) != 1 || got[0] != msgNotAllowed {
		t.Fatalf("chat 9 messages = %q", got)
	}
	if len(runner.reqs) != 1 || runner.reqs[0].ChatID != 42 {
		t.Fatalf("requests = %+v", runner.reqs)
	}
}

func TestFailedRunIsRemembered(t *testing.T) {
	sender := &fakeSender{}
	runner := &fakeRunner{fail: errors.New("image search: no images found")}
	b := newTestBot(t, runner, sender, Options{})

	serve(t, b, Incoming{ChatID: 3, Text: "castle"})

	st := b.status(3)
	if !strings.Contains(st, "State: failed") || !strings.Contains(st, "no images found") {
		t.Fatalf("status = %q", st)
	}
}

func TestStatusAfterSuccess(t *testing.T) {
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Fatal(err)
	}
	b := newTestBot(t, &fakeRunner{}, &fakeSender{}, Options{Location: loc})
	b.store.finish(5, &pipeline.Run{
		Request: pipeline.Request{ChatID: 5, Topic: "ceilidh"},
		State:   pipeline.Done,
		Article: generator.Article{Title: `Dancing with <a href="https://www.qloga.com">QLOGA</a>`},
		Slot:    schedule.Resolution{At: time.Date(2024, 7, 2, 5, 3, 0, 0, time.UTC)},
		Post:    publisher.Post{Link: "https://blog.example/?p=9"},
	})

	st := b.status(5)
	for _, want := range []string{"Last topic: ceilidh", "Title: Dancing with QLOGA", "URL: https://blog.example/?p=9", "Tue 2 Jul 2024 06:03 BST"} {
		if !strings.Contains(st, want) {
			t.Errorf("status %q missing %q", st, want)
		}
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	b := newTestBot(t, &fakeRunner{}, &fakeSender{}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Serve(ctx, make(chan Incoming)); !errors.Is(err, context.Canceled) {
		t.Fatalf("Serve = %v", err)
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(nil, &fakeSender{}, Options{Stop: func() {}}); err == nil {
		t.Fatal("expected error for nil runner")
	}
	if _, err := New(&fakeRunner{}, &fakeSender{}, Options{}); err == nil {
		t.Fatal("expected error for missing stop")
	}
}

func TestToIncoming(t *testing.T) {
	tests := []struct {
		name string
		msg  *tgbotapi.Message
		want Incoming
		ok   bool
	}{
		{"nil", nil, Incoming{}, false},
		{"no chat", &tgbotapi.Message{Text: "hi"}, Incoming{}, false},
		{
			"topic",
			&tgbotapi.Message{Text: "Leith food tour", Chat: &tgbotapi.Chat{ID: 11}, From: &tgbotapi.User{UserName: "ailsa"}},
			Incoming{ChatID: 11, User: "ailsa", Text: "Leith food tour"},
			true,
		},
		{
			"command with bot name",
			&tgbotapi.Message{
				Text:     "/start@wpbot",
				Chat:     &tgbotapi.Chat{ID: 12},
				From:     &tgbotapi.User{FirstName: "Rab"},
				Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 12}},
			},
			Incoming{ChatID: 12, User: "Rab", Command: "start"},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := toIncoming(tt.msg)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("toIncoming = %+v, %v; want %+v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

// Package pipeline runs one topic through generation, image search,
// scheduling and publishing, reporting progress as it goes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"auto_wordpress_article_publisher/generator"
	"auto_wordpress_article_publisher/history"
	"auto_wordpress_article_publisher/publisher"
	"auto_wordpress_article_publisher/schedule"
)

type State string

const (
	Idle        State = "idle"
	Generating  State = "generating"
	ImageSearch State = "image_search"
	Scheduling  State = "scheduling"
	Publishing  State = "publishing"
	Done        State = "done"
	Failed      State = "failed"
)

const (
	msgGenerating  = "📝 Generating article content..."
	msgImageSearch = "🖼 Finding a perfect image..."
	msgScheduling  = "📅 Finding a free publication slot..."
	msgPublishing  = "🌐 Publishing to WordPress..."
	msgFailure     = "❌ Sorry, something went wrong: %s"
)

type ArticleGenerator interface {
	Article(ctx context.Context, topic string) (generator.Article, error)
}

type ImageFinder interface {
	Find(ctx context.Context, topic string) (string, error)
}

type SlotResolver interface {
	Next(ctx context.Context) (schedule.Resolution, error)
}

type Publisher interface {
	Publish(ctx context.Context, art generator.Article, imageURL string, at time.Time) (publisher.Post, error)
}

// Recorder stores finished runs. Optional.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

// Reporter delivers user-facing messages for one conversation.
type Reporter interface {
	Report(ctx context.Context, text string) error
}

// Deps are the collaborators of a Sequencer.
type Deps struct {
	Generator ArticleGenerator
	Images    ImageFinder
	Slots     SlotResolver
	Publisher Publisher
	Recorder  Recorder
	// Location formats the scheduled slot in the final message.
	Location *time.Location
	Logger   *log.Logger
	Now      func() time.Time
}

// Sequencer executes the steps strictly in order. It holds no per-run state.
type Sequencer struct {
	deps Deps
}

func New(deps Deps) (*Sequencer, error) {
	if deps.Generator == nil || deps.Images == nil || deps.Slots == nil || deps.Publisher == nil {
		return nil, errors.New("generator, image finder, slot resolver and publisher are required")
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Sequencer{deps: deps}, nil
}

// Request is one topic from one conversation.
type Request struct {
	ChatID int64
	Topic  string
}

// Transition records when a run entered a state.
type Transition struct {
	State State
	At    time.Time
}

// Run is the trace of one request.
type Run struct {
	ID       string
	Request  Request
	State    State
	History  []Transition
	Article  generator.Article
	ImageURL string
	Slot     schedule.Resolution
	Post     publisher.Post
	Err      error
}

func (r *Run) enter(s State, at time.Time) {
	r.State = s
	r.History = append(r.History, Transition{State: s, At: at})
}

// Run processes req to completion. The returned Run is never nil; its error
// is also returned so callers can branch on it.
func (s *Sequencer) Run(ctx context.Context, req Request, rep Reporter) (*Run, error) {
	run := &Run{ID: uuid.NewString(), Request: req}
	run.enter(Idle, s.deps.Now())
	logger := s.deps.Logger.With("request", run.ID, "chat", req.ChatID)

	err := s.execute(ctx, run, rep, logger)
	if err != nil {
		run.Err = err
		run.enter(Failed, s.deps.Now())
		logger.Error("pipeline failed", "topic", req.Topic, "err", err)
		s.report(ctx, rep, logger, fmt.Sprintf(msgFailure, err))
	} else {
		run.enter(Done, s.deps.Now())
		logger.Info("pipeline done", "link", run.Post.Link, "slot", run.Slot.At.Format(time.RFC3339))
		s.report(ctx, rep, logger, s.successMessage(run))
	}

	s.record(ctx, run, logger)
	return run, err
}

func (s *Sequencer) execute(ctx context.Context, run *Run, rep Reporter, logger *log.Logger) error {
	topic := strings.TrimSpace(run.Request.Topic)
	if topic == "" {
		return errors.New("topic is empty")
	}

	s.step(ctx, run, rep, logger, Generating, msgGenerating)
	art, err := s.deps.Generator.Article(ctx, topic)
	if err != nil {
		return fmt.Errorf("article generation: %w", err)
	}
	run.Article = art

	s.step(ctx, run, rep, logger, ImageSearch, msgImageSearch)
	imageURL, err := s.deps.Images.Find(ctx, topic)
	if err != nil {
		return fmt.Errorf("image search: %w", err)
	}
	run.ImageURL = imageURL

	s.step(ctx, run, rep, logger, Scheduling, msgScheduling)
	slot, err := s.deps.Slots.Next(ctx)
	if err != nil {
		return fmt.Errorf("scheduling: %w", err)
	}
	run.Slot = slot

	s.step(ctx, run, rep, logger, Publishing, msgPublishing)
	post, err := s.deps.Publisher.Publish(ctx, art, imageURL, slot.At)
	if err != nil {
		return fmt.Errorf("publishing: %w", err)
	}
	run.Post = post
	return nil
}

func (s *Sequencer) step(ctx context.Context, run *Run, rep Reporter, logger *log.Logger, state State, msg string) {
	run.enter(state, s.deps.Now())
	logger.Info("pipeline step", "state", state)
	s.report(ctx, rep, logger, msg)
}

// report never aborts a run; a lost status message is only logged.
func (s *Sequencer) report(ctx context.Context, rep Reporter, logger *log.Logger, text string) {
	if rep == nil {
		return
	}
	if err := rep.Report(ctx, text); err != nil {
		logger.Warn("failed to deliver message", "err", err)
	}
}

func (s *Sequencer) successMessage(run *Run) string {
	at := run.Slot.At.In(s.deps.Location)
	return fmt.Sprintf("✅ Article published successfully!\n\n📑 Title: %s\n🔗 URL: %s\n\nThe article is scheduled for publication on %s at %s (%s).",
		publisher.PlainText(run.Article.Title),
		run.Post.Link,
		at.Format("Monday 2 January 2006"),
		at.Format("15:04"),
		s.deps.Location.String(),
	)
}

func (s *Sequencer) record(ctx context.Context, run *Run, logger *log.Logger) {
	if s.deps.Recorder == nil {
		return
	}
	e := history.Entry{
		RequestID:   run.ID,
		ChatID:      run.Request.ChatID,
		Topic:       run.Request.Topic,
		Title:       publisher.PlainText(run.Article.Title),
		Link:        run.Post.Link,
		ScheduledAt: run.Slot.At,
		State:       string(run.State),
		CreatedAt:   s.deps.Now(),
	}
	if run.Err != nil {
		e.Error = run.Err.Error()
	}
	// recorded even when ctx was cancelled
	if err := s.deps.Recorder.Record(context.WithoutCancel(ctx), e); err != nil {
		logger.Warn("failed to record run", "err", err)
	}
}

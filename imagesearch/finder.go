package imagesearch

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
)

// PhraseSource derives a stock-photo description from a topic.
type PhraseSource interface {
	ImagePhrase(ctx context.Context, topic string) (string, error)
}

// Searcher maps a description to an image URL.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Finder chains a PhraseSource and a Searcher.
type Finder struct {
	phrases  PhraseSource
	searcher Searcher
	logger   *log.Logger
}

func NewFinder(phrases PhraseSource, searcher Searcher, logger *log.Logger) (*Finder, error) {
	if phrases == nil || searcher == nil {
		return nil, errors.New("phrase source and searcher are required")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Finder{phrases: phrases, searcher: searcher, logger: logger}, nil
}

// Find returns one image URL for topic.
func (f *Finder) Find(ctx context.Context, topic string) (string, error) {
	phrase, err := f.phrases.ImagePhrase(ctx, topic)
	if err != nil {
		return "", err
	}
	f.logger.Info("generated image description", "topic", topic, "phrase", phrase)
	return f.searcher.Search(ctx, phrase)
}

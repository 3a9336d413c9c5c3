package aigen

import (
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/inboxforge/warmline/internal/config"
	"github.com/inboxforge/warmline/internal/pkg/httpretry"
)

// feedTitleCap bounds how many headlines one feed contributes
const feedTitleCap = 5

// TopicSource hands out prompt topics. Without configured feeds it
// draws from the built-in per-language lists; with feeds it blends in
// recent headline titles, refreshed at most once per interval. Feed
// titles only ever reach the AI prompt path; the template fallback
// stays on the static lists so it works offline.
type TopicSource struct {
	feeds   []string
	refresh time.Duration
	parser  *gofeed.Parser

	mu      sync.Mutex
	rng     *rand.Rand
	cached  []string
	fetched time.Time
	now     func() time.Time
}

// NewTopicSource builds a topic source from config. An empty feed list
// is fine; the source then serves static topics only.
func NewTopicSource(cfg config.TopicsConfig) *TopicSource {
	refresh := time.Duration(cfg.RefreshMinutes) * time.Minute
	if refresh <= 0 {
		refresh = time.Hour
	}
	parser := gofeed.NewParser()
	parser.Client = httpretry.NewClient(20*time.Second, 2)
	return &TopicSource{
		feeds:   cfg.Feeds,
		refresh: refresh,
		parser:  parser,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
	}
}

// Random returns one topic from the blended pool
func (s *TopicSource) Random(language string) string {
	pool := staticTopics(normalizeLanguage(language))
	if titles := s.headlines(); len(titles) > 0 {
		blended := make([]string, 0, len(pool)+len(titles))
		blended = append(blended, pool...)
		blended = append(blended, titles...)
		pool = blended
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return pool[s.rng.Intn(len(pool))]
}

// headlines returns the cached feed titles, refetching when stale.
// Feed failures degrade to whatever was cached before.
func (s *TopicSource) headlines() []string {
	if len(s.feeds) == 0 {
		return nil
	}

	s.mu.Lock()
	if !s.fetched.IsZero() && s.now().Sub(s.fetched) < s.refresh {
		cached := s.cached
		s.mu.Unlock()
		return cached
	}
	s.mu.Unlock()

	var titles []string
	for _, url := range s.feeds {
		feed, err := s.parser.ParseURL(url)
		if err != nil {
			log.Printf("[Topics] feed %s failed: %v", url, err)
			continue
		}
		count := 0
		for _, item := range feed.Items {
			title := strings.TrimSpace(item.Title)
			if title == "" {
				continue
			}
			titles = append(titles, title)
			count++
			if count >= feedTitleCap {
				break
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetched = s.now()
	if len(titles) > 0 || s.cached == nil {
		s.cached = titles
	}
	return s.cached
}

package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/oklog/ulid/v2"

	"github.com/XertroV/linkarchive/internal/config"
	"github.com/XertroV/linkarchive/internal/models"
	"github.com/XertroV/linkarchive/internal/repository"
	"github.com/XertroV/linkarchive/internal/urlnorm"
)

// FeedService polls the forum RSS feed, stores posts, and turns outbound
// links in post bodies into pending archives.
type FeedService struct {
	cfg      *config.Config
	repos    *repository.Repositories
	archives *ArchiveService
	parser   *gofeed.Parser
	logger   *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewFeedService creates the feed service.
func NewFeedService(cfg *config.Config, repos *repository.Repositories, archives *ArchiveService, logger *slog.Logger) *FeedService {
	parser := gofeed.NewParser()
	parser.UserAgent = "linkarchive/1.0 (+https://github.com/XertroV/linkarchive)"
	return &FeedService{
		cfg:      cfg,
		repos:    repos,
		archives: archives,
		parser:   parser,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the poll loop. An immediate first poll runs before the
// ticker cadence takes over.
func (s *FeedService) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pollOnce(ctx)
		ticker := time.NewTicker(s.cfg.FeedPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.pollOnce(ctx)
			}
		}
	}()
}

// Stop halts the poll loop and waits for an in-flight poll.
func (s *FeedService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// pollOnce fetches the feed, upserts posts, then scans unprocessed posts for
// outbound links.
func (s *FeedService) pollOnce(ctx context.Context) {
	feed, err := s.parser.ParseURLWithContext(s.cfg.FeedURL, ctx)
	if err != nil {
		s.logger.Error("feed poll failed", "url", s.cfg.FeedURL, "error", err)
		return
	}

	var stored int
	for _, item := range feed.Items {
		guid := item.GUID
		if guid == "" {
			guid = item.Link
		}
		if guid == "" {
			continue
		}
		body := item.Content
		if body == "" {
			body = item.Description
		}
		hash := sha256.Sum256([]byte(item.Title + "\x00" + body))

		changed, err := s.repos.Posts.Upsert(ctx, &models.Post{
			ID:           ulid.Make().String(),
			GUID:         guid,
			DiscourseURL: item.Link,
			Author:       itemAuthor(item),
			Title:        item.Title,
			BodyHTML:     body,
			ContentHash:  hex.EncodeToString(hash[:]),
			PublishedAt:  item.PublishedParsed,
		})
		if err != nil {
			s.logger.Error("failed to upsert post", "guid", guid, "error", err)
			continue
		}
		if changed {
			stored++
		}
	}
	if stored > 0 {
		s.logger.Info("feed poll stored posts", "count", stored, "feed_items", len(feed.Items))
	}

	s.processPosts(ctx)
}

// processPosts extracts links from unprocessed post bodies and ensures
// archives exist for them.
func (s *FeedService) processPosts(ctx context.Context) {
	posts, err := s.repos.Posts.ListUnprocessed(ctx, 100)
	if err != nil {
		s.logger.Error("failed to list unprocessed posts", "error", err)
		return
	}
	for _, post := range posts {
		links := ExtractLinks(post.BodyHTML, post.DiscourseURL)
		for _, raw := range links {
			if _, _, err := s.archives.EnsureArchiveAt(ctx, raw, post.PublishedAt); err != nil {
				if errors.Is(err, ErrDomainExcluded) || errors.Is(err, urlnorm.ErrInvalidURL) {
					continue
				}
				s.logger.Error("failed to ensure archive for post link",
					"post_id", post.ID, "url", raw, "error", err)
			}
		}
		if err := s.repos.Posts.MarkProcessed(ctx, post.ID, time.Now().UTC()); err != nil {
			s.logger.Error("failed to mark post processed", "post_id", post.ID, "error", err)
		}
	}
}

// ExtractLinks pulls candidate outbound http(s) links out of post HTML.
// Relative links and anchors back into the forum itself are dropped.
func ExtractLinks(bodyHTML, postURL string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(bodyHTML))
	if err != nil {
		return nil
	}

	forumHost := ""
	if pu, err := url.Parse(postURL); err == nil {
		forumHost = strings.ToLower(pu.Hostname())
	}

	seen := map[string]bool{}
	var out []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		u, err := url.Parse(href)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		host := strings.ToLower(u.Hostname())
		if host == "" || host == forumHost {
			return
		}
		if seen[href] {
			return
		}
		seen[href] = true
		out = append(out, href)
	})
	return out
}

func itemAuthor(item *gofeed.Item) string {
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		return item.Authors[0].Name
	}
	return ""
}

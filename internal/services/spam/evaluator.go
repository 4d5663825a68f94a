package spam

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spaolacci/murmur3"

	"github.com/ivankudzin/forummod/internal/domain/model"
)

// Version identifies the heuristic set. Bump it whenever weights or signals change so cached
// and persisted verdicts can be told apart.
const Version = "heuristic-v1"

const (
	TagGTUBE         = "gtube"
	TagBannedTerm    = "banned_term"
	TagLinks         = "links"
	TagShortWithLink = "short_with_link"
	TagShouting      = "shouting"
	TagRepetition    = "repetition"
	TagBurstPosting  = "burst_posting"
	TagReported      = "reported"
	TagUnevaluable   = "unevaluable"
)

const (
	weightBannedTerm    = 0.45
	weightLinks         = 0.25
	weightShortWithLink = 0.15
	weightShouting      = 0.10
	weightRepetition    = 0.15
	weightBurstPosting  = 0.25
	weightPerReport     = 0.10
	maxReportWeight     = 0.30

	shortBodyRunes     = 24
	shoutingMinLetters = 20
	shoutingRatio      = 0.7
	repetitionMinCount = 5
	repetitionShare    = 0.4
)

// Signals are the non-content inputs of an evaluation.
type Signals struct {
	AuthorPostsShortWindow int64
	AuthorPostsLongWindow  int64
	ReportCount            int
}

type Config struct {
	BannedTerms          []string
	LinkThreshold        int
	BurstShortWindowPost int
	BurstLongWindowPost  int
	CacheSize            int
}

type Evaluator struct {
	cfg    Config
	banned []string
	cache  *lru.Cache[string, model.SpamVerdict]
	now    func() time.Time
}

func NewEvaluator(cfg Config) (*Evaluator, error) {
	if cfg.LinkThreshold <= 0 {
		cfg.LinkThreshold = 2
	}
	if cfg.BurstShortWindowPost <= 0 {
		cfg.BurstShortWindowPost = 5
	}
	if cfg.BurstLongWindowPost <= 0 {
		cfg.BurstLongWindowPost = 20
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 4096
	}

	cache, err := lru.New[string, model.SpamVerdict](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create verdict cache: %w", err)
	}

	banned := make([]string, 0, len(cfg.BannedTerms))
	for _, term := range cfg.BannedTerms {
		normalized := strings.Join(tokenize(term), " ")
		if normalized == "" {
			continue
		}
		banned = append(banned, normalized)
	}

	return &Evaluator{
		cfg:    cfg,
		banned: banned,
		cache:  cache,
		now:    time.Now,
	}, nil
}

// Evaluate scores an item. The same body, signals and Version always yield the same score and
// tags. Items without a body or author get a zero-score verdict tagged unevaluable.
func (e *Evaluator) Evaluate(item model.ContentItem, signals Signals) model.SpamVerdict {
	evaluatedAt := e.now().UTC()

	if strings.TrimSpace(item.Body) == "" || strings.TrimSpace(item.AuthorID) == "" || !utf8.ValidString(item.Body) {
		return model.SpamVerdict{
			Score:       0,
			Tags:        []string{TagUnevaluable},
			Version:     Version,
			EvaluatedAt: evaluatedAt,
		}
	}

	key := cacheKey(item.Body, signals)
	if cached, ok := e.cache.Get(key); ok {
		cached.Tags = cloneTags(cached.Tags)
		cached.EvaluatedAt = evaluatedAt
		return cached
	}

	verdict := e.score(item.Body, signals)
	e.cache.Add(key, verdict)

	verdict.Tags = cloneTags(verdict.Tags)
	verdict.EvaluatedAt = evaluatedAt
	return verdict
}

func (e *Evaluator) score(body string, signals Signals) model.SpamVerdict {
	if strings.Contains(body, gtubeString) {
		return model.SpamVerdict{Score: 1, Tags: []string{TagGTUBE}, Version: Version}
	}

	var (
		score float64
		tags  []string
	)
	add := func(tag string, weight float64) {
		score += weight
		tags = append(tags, tag)
	}

	tokens := tokenize(body)
	if e.containsBannedTerm(tokens) {
		add(TagBannedTerm, weightBannedTerm)
	}

	urls := extractURLs(body)
	if len(urls) >= e.cfg.LinkThreshold {
		add(TagLinks, weightLinks)
	}
	if len(urls) > 0 && nonURLRunes(body, urls) <= shortBodyRunes {
		add(TagShortWithLink, weightShortWithLink)
	}

	if ratio, letters := upperRatio(body); letters >= shoutingMinLetters && ratio >= shoutingRatio {
		add(TagShouting, weightShouting)
	}

	if share, count := dominantTokenShare(tokens); count >= repetitionMinCount && share >= repetitionShare {
		add(TagRepetition, weightRepetition)
	}

	if signals.AuthorPostsShortWindow > int64(e.cfg.BurstShortWindowPost) || signals.AuthorPostsLongWindow > int64(e.cfg.BurstLongWindowPost) {
		add(TagBurstPosting, weightBurstPosting)
	}

	if signals.ReportCount > 0 {
		add(TagReported, math.Min(float64(signals.ReportCount)*weightPerReport, maxReportWeight))
	}

	if tags == nil {
		tags = []string{}
	}
	return model.SpamVerdict{
		Score:   clampScore(score),
		Tags:    tags,
		Version: Version,
	}
}

func (e *Evaluator) containsBannedTerm(tokens []string) bool {
	if len(e.banned) == 0 || len(tokens) == 0 {
		return false
	}
	padded := " " + strings.Join(tokens, " ") + " "
	for _, term := range e.banned {
		if strings.Contains(padded, " "+term+" ") {
			return true
		}
	}
	return false
}

func cacheKey(body string, signals Signals) string {
	return fmt.Sprintf("%s/%016x/%d/%d/%d",
		Version,
		murmur3.Sum64([]byte(body)),
		signals.AuthorPostsShortWindow,
		signals.AuthorPostsLongWindow,
		signals.ReportCount,
	)
}

func clampScore(score float64) float64 {
	if score < 0 || math.IsNaN(score) {
		return 0
	}
	if score > 1 {
		return 1
	}
	return math.Round(score*1e4) / 1e4
}

func cloneTags(tags []string) []string {
	out := make([]string, len(tags))
	copy(out, tags)
	return out
}

func nonURLRunes(body string, urls []string) int {
	rest := body
	for _, u := range urls {
		rest = strings.Replace(rest, u, "", 1)
	}
	return utf8.RuneCountInString(strings.TrimSpace(rest))
}

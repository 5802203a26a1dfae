// Package media turns release-style media filenames into short display labels.
package media

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	ptt "github.com/itsrenoria/ptt-go"
	"github.com/mattn/go-runewidth"
)

// CacheSize bounds how many labels a Labeler keeps.
const CacheSize = 256

// Labeler parses filenames with ptt-go and caches the result per path. The
// cache holds the most recently used CacheSize labels.
type Labeler struct {
	maxWidth int

	mu     sync.Mutex
	parser *ptt.Parser
	cache  *lru.Cache[string, string]
}

// NewLabeler creates a labeler whose labels fit in maxWidth cells. A
// non-positive maxWidth disables truncation.
func NewLabeler(maxWidth int) *Labeler {
	parser := ptt.NewParser()
	ptt.AddDefaults(parser)

	// lru.New fails only for a non-positive size.
	cache, _ := lru.New[string, string](CacheSize)

	return &Labeler{
		maxWidth: maxWidth,
		parser:   parser,
		cache:    cache,
	}
}

// Label returns "Title (Year) SxxEyy" for recognised names and the base name
// otherwise.
func (l *Labeler) Label(path string) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if label, ok := l.cache.Get(path); ok {
		return label
	}

	label := l.parse(path)
	if l.maxWidth > 0 {
		label = Truncate(label, l.maxWidth, "...")
	}
	l.cache.Add(path, label)
	return label
}

// Forget drops a cached label, typically once its item finished.
func (l *Labeler) Forget(path string) {
	l.cache.Remove(path)
}

// Cached returns the number of cached labels.
func (l *Labeler) Cached() int {
	return l.cache.Len()
}

func (l *Labeler) parse(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))

	info := l.parser.Parse(name)
	if info == nil || strings.TrimSpace(info.Title) == "" {
		return base
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(info.Title))
	if info.Year > 0 {
		fmt.Fprintf(&b, " (%d)", info.Year)
	}
	if ep := episodeTag(info.Seasons, info.Episodes); ep != "" {
		b.WriteString(" ")
		b.WriteString(ep)
	}
	return b.String()
}

func episodeTag(seasons, episodes []int) string {
	var b strings.Builder
	if len(seasons) > 0 {
		fmt.Fprintf(&b, "S%02d", seasons[0])
	}
	switch len(episodes) {
	case 0:
	case 1:
		fmt.Fprintf(&b, "E%02d", episodes[0])
	default:
		fmt.Fprintf(&b, "E%02d-E%02d", episodes[0], episodes[len(episodes)-1])
	}
	return b.String()
}

// Truncate shortens source to at most length display cells, ending it with
// ellipsis when cut.
func Truncate(source string, length int, ellipsis string) string {
	if source == "" || length <= 0 {
		return ""
	}
	if runewidth.StringWidth(source) <= length {
		return source
	}
	if runewidth.StringWidth(ellipsis) >= length {
		return runewidth.Truncate(source, length, "")
	}
	return runewidth.Truncate(source, length, ellipsis)
}

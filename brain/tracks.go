package brain

import (
	"errors"
	"strings"

	"github.com/cantina-os/core/schema"
)

// ErrNoTracks is returned when the library is empty.
var ErrNoTracks = errors.New("brain: no tracks available")

// keywordMap is the closed mood/genre dictionary for query matching.
var keywordMap = map[string][]string{
	"upbeat":     {"cantina", "swing"},
	"calm":       {"force theme", "binary sunset"},
	"dramatic":   {"duel", "imperial march"},
	"mysterious": {"binary sunset"},
}

// selectTrack picks a track for query: exact title match, then
// substring, then keyword map, then artist-diversity and recent-history
// filtering, then random choice among the survivors. query may be empty,
// in which case only the filtering and random steps apply.
func (br *Brain) selectTrack(query string) (schema.MusicTrack, error) {
	br.mu.Lock()
	library := append([]schema.MusicTrack(nil), br.library...)
	history := append([]string(nil), br.history...)
	current := br.currentTrack
	br.mu.Unlock()

	if len(library) == 0 {
		return schema.MusicTrack{}, ErrNoTracks
	}

	candidates := library
	if query != "" {
		if exact := matchExactTitle(library, query); len(exact) > 0 {
			candidates = exact
		} else if sub := matchSubstring(library, query); len(sub) > 0 {
			candidates = sub
		} else if kw := matchKeyword(library, query); len(kw) > 0 {
			candidates = kw
		}
		// No match at any stage: fall through to the full library, per
		// step 4's "random from whole library" floor.
	}

	candidates = deprioritizeSameArtist(candidates, current)
	candidates = filterHistory(candidates, history)

	if len(candidates) == 0 {
		candidates = library
	}
	return candidates[randIntn(len(candidates))], nil
}

func matchExactTitle(library []schema.MusicTrack, query string) []schema.MusicTrack {
	q := strings.ToLower(query)
	var out []schema.MusicTrack
	for _, t := range library {
		if strings.ToLower(t.Title) == q {
			out = append(out, t)
		}
	}
	return out
}

func matchSubstring(library []schema.MusicTrack, query string) []schema.MusicTrack {
	q := strings.ToLower(query)
	var out []schema.MusicTrack
	for _, t := range library {
		if strings.Contains(strings.ToLower(t.Title), q) || strings.Contains(strings.ToLower(t.Artist), q) {
			out = append(out, t)
		}
	}
	return out
}

func matchKeyword(library []schema.MusicTrack, query string) []schema.MusicTrack {
	titles, ok := keywordMap[strings.ToLower(query)]
	if !ok {
		return nil
	}
	var out []schema.MusicTrack
	for _, t := range library {
		tl := strings.ToLower(t.Title)
		for _, want := range titles {
			if strings.Contains(tl, want) {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// deprioritizeSameArtist drops tracks by the same artist as current when
// alternatives remain. It never
// excludes outright: if removing same-artist tracks would empty the
// set, the original set is returned unchanged.
func deprioritizeSameArtist(candidates []schema.MusicTrack, current string) []schema.MusicTrack {
	if current == "" {
		return candidates
	}
	var currentArtist string
	for _, t := range candidates {
		if t.PathOrURI == current {
			currentArtist = t.Artist
			break
		}
	}
	if currentArtist == "" {
		return candidates
	}
	var filtered []schema.MusicTrack
	for _, t := range candidates {
		if t.Artist != currentArtist {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == 0 {
		return candidates
	}
	return filtered
}

// filterHistory drops tracks played in the last N,
// identified by path_or_uri, when alternatives remain.
func filterHistory(candidates []schema.MusicTrack, history []string) []schema.MusicTrack {
	if len(history) == 0 {
		return candidates
	}
	recent := make(map[string]bool, len(history))
	for _, h := range history {
		recent[h] = true
	}
	var filtered []schema.MusicTrack
	for _, t := range candidates {
		if !recent[t.PathOrURI] {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == 0 {
		return candidates
	}
	return filtered
}

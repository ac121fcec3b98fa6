package validation

import (
	"errors"
	"regexp"
	"strings"
)

var (
	videoIDRegex   = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
	channelIDRegex = regexp.MustCompile(`^UC[a-zA-Z0-9_-]{22}$`)

	videoURLRegex     = regexp.MustCompile(`(?:v=|/videos/|/shorts/|/live/|youtu\.be/)([a-zA-Z0-9_-]{11})`)
	embeddedChannelID = regexp.MustCompile(`UC[a-zA-Z0-9_-]{22}`)

	// Ordered from most to least specific. Later patterns only see URLs the
	// earlier ones rejected.
	channelURLPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)youtube\.com/channel/(UC[a-zA-Z0-9_-]{22})`),
		regexp.MustCompile(`(?i)youtube\.com/c/([\w\-.]+)`),
		regexp.MustCompile(`(?i)youtube\.com/user/([\w\-.]+)`),
		regexp.MustCompile(`(?i)youtube\.com/@([\w\-.]+)`),
		regexp.MustCompile(`(?i)youtu\.be/channel/(UC[a-zA-Z0-9_-]{22})`),
		regexp.MustCompile(`(?i)youtu\.be/c/([\w\-.]+)`),
		regexp.MustCompile(`(?i)youtu\.be/user/([\w\-.]+)`),
		regexp.MustCompile(`(?i)youtu\.be/@([\w\-.]+)`),
		regexp.MustCompile(`@([\w\-.]+)`),
		regexp.MustCompile(`(?i)youtube\.com/([\w\-.]+)`),
	}
)

var (
	// ErrNoVideoID indicates the input carried no recognizable video identifier.
	ErrNoVideoID = errors.New("no video id in input")

	// ErrNoChannelRef indicates the input carried no recognizable channel
	// identifier or handle.
	ErrNoChannelRef = errors.New("no channel reference in input")
)

// ChannelRef is a parsed channel reference. Exactly one field is set: ID when
// the input carried a canonical channel identifier, Handle when it carried a
// username or handle that still needs API resolution.
type ChannelRef struct {
	ID     string
	Handle string
}

// Resolved reports whether the reference already names a canonical channel ID.
func (r ChannelRef) Resolved() bool {
	return r.ID != ""
}

// IsValidVideoID reports whether s is a well-formed video identifier.
func IsValidVideoID(s string) bool {
	return videoIDRegex.MatchString(s)
}

// IsValidChannelID reports whether s is a well-formed canonical channel identifier.
func IsValidChannelID(s string) bool {
	return channelIDRegex.MatchString(s)
}

// ParseVideoID extracts a video identifier from a URL or bare ID.
func ParseVideoID(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrNoVideoID
	}

	if IsValidVideoID(input) {
		return input, nil
	}

	if m := videoURLRegex.FindStringSubmatch(input); m != nil {
		return m[1], nil
	}

	return "", ErrNoVideoID
}

// ParseChannelRef extracts a channel reference from a URL, handle, or bare ID.
func ParseChannelRef(input string) (ChannelRef, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return ChannelRef{}, ErrNoChannelRef
	}

	// A canonical ID anywhere in the input wins.
	if m := embeddedChannelID.FindString(input); m != "" {
		return ChannelRef{ID: m}, nil
	}

	for _, pattern := range channelURLPatterns {
		m := pattern.FindStringSubmatch(input)
		if m == nil {
			continue
		}
		return ChannelRef{Handle: cleanHandle(m[1])}, nil
	}

	// A bare handle with no URL around it.
	if strings.HasPrefix(input, "@") {
		return ChannelRef{Handle: cleanHandle(input)}, nil
	}

	return ChannelRef{}, ErrNoChannelRef
}

func cleanHandle(handle string) string {
	handle = strings.TrimPrefix(handle, "@")
	for _, sep := range []string{"/", "?", "&"} {
		if i := strings.Index(handle, sep); i >= 0 {
			handle = handle[:i]
		}
	}
	return handle
}

package resolver

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	youtubeURLPattern = regexp.MustCompile(`^(?:https?://)?(?:www\.|music\.|m\.)?(youtube\.com|youtu\.be)/\S+`)
	videoIDPattern    = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
)

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func isYouTubeURL(s string) bool {
	return youtubeURLPattern.MatchString(s)
}

// playlistID returns the list= parameter of a YouTube URL. Radio mixes
// (RD...) are generated per viewer and are treated as single videos.
func playlistID(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	id := u.Query().Get("list")
	if strings.HasPrefix(id, "RD") {
		return ""
	}
	return id
}

// videoID extracts the 11 character id from watch, short, shorts and
// youtu.be links.
func videoID(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid YouTube URL: %w", err)
	}

	var id string
	switch host := strings.TrimPrefix(u.Hostname(), "www."); host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "music.youtube.com", "m.youtube.com":
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/shorts/"), strings.HasPrefix(u.Path, "/live/"):
			parts := strings.Split(strings.Trim(u.Path, "/"), "/")
			id = parts[len(parts)-1]
		}
	}

	if !videoIDPattern.MatchString(id) {
		return "", errors.New("no video id in YouTube URL")
	}
	return id, nil
}

// watchURL is the canonical link stored as a track locator.
func watchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

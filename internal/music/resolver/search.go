package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/keshon/server-otaku/internal/music/track"
	"github.com/keshon/server-otaku/pkg/retrylimit"
)

var (
	searchResultPattern = regexp.MustCompile(`"url":"/watch\?v=([a-zA-Z0-9_-]{11})`)

	ErrNoSearchResults = errors.New("no video found for the given title")
)

// runFunc runs an external program and returns its stdout.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

type ytdlpInfo struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Duration   float64 `json:"duration"`
	WebpageURL string  `json:"webpage_url"`
	IsLive     bool    `json:"is_live"`
}

// search turns a free-text query into the first matching YouTube video.
// yt-dlp is tried first; when it is missing or fails, the results page is
// scraped instead.
func (r *Resolver) search(ctx context.Context, query, requestedBy string) ([]track.Track, error) {
	t, err := r.searchYTDLP(ctx, query)
	if err == nil {
		t.RequestedBy = requestedBy
		return []track.Track{t}, nil
	}
	log.Printf("[Resolver] yt-dlp search for %q failed, scraping results page: %v", query, err)

	id, err := r.searchPage(ctx, query)
	if err != nil {
		return nil, err
	}
	video, err := r.video(ctx, id)
	if err != nil {
		// Still playable, only the metadata is missing.
		return []track.Track{{
			Title:       query,
			Locator:     watchURL(id),
			RequestedBy: requestedBy,
			Source:      track.SourceSearch,
		}}, nil
	}
	t = videoTrack(video, requestedBy)
	t.Source = track.SourceSearch
	return []track.Track{t}, nil
}

func (r *Resolver) searchYTDLP(ctx context.Context, query string) (track.Track, error) {
	out, err := r.run(ctx, "yt-dlp", "--dump-json", "--no-playlist", "--skip-download", "ytsearch1:"+query)
	if err != nil {
		return track.Track{}, err
	}

	// One JSON document per result.
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	if line == "" {
		return track.Track{}, ErrNoSearchResults
	}

	var info ytdlpInfo
	if err := json.Unmarshal([]byte(line), &info); err != nil {
		return track.Track{}, fmt.Errorf("decode yt-dlp output: %w", err)
	}

	locator := info.WebpageURL
	if locator == "" && info.ID != "" {
		locator = watchURL(info.ID)
	}
	if locator == "" {
		return track.Track{}, ErrNoSearchResults
	}

	t := track.Track{
		Title:   info.Title,
		Locator: locator,
		Source:  track.SourceSearch,
	}
	if !info.IsLive {
		t.Duration = time.Duration(info.Duration * float64(time.Second))
	}
	return t, nil
}

// searchPage scrapes the first video id from the YouTube results page.
func (r *Resolver) searchPage(ctx context.Context, query string) (string, error) {
	searchURL := fmt.Sprintf("%s/results?search_query=%s", r.baseURL, url.QueryEscape(query))

	var body []byte
	err := retrylimit.Do(ctx, r.limiter, r.policy, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
		if err != nil {
			return retrylimit.Permanent(err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")

		resp, err := r.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if err := retrylimit.CheckResponse(resp); err != nil {
			return err
		}
		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("YouTube search: %w", err)
	}

	m := searchResultPattern.FindSubmatch(body)
	if m == nil {
		return "", ErrNoSearchResults
	}
	return string(m[1]), nil
}

// ytdlpStreamURL asks yt-dlp for a direct media URL.
func (r *Resolver) ytdlpStreamURL(ctx context.Context, locator string) (string, error) {
	out, err := r.run(ctx, "yt-dlp", "-g", "-f", "bestaudio/best", "--no-playlist", locator)
	if err != nil {
		return "", err
	}
	link, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	if link == "" {
		return "", errors.New("yt-dlp returned no URL")
	}
	return link, nil
}

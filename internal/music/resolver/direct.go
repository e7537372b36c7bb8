package resolver

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/keshon/server-otaku/internal/music/track"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

var streamContentTypes = []string{
	"audio/",
	"video/",
	"application/vnd.apple.mpegurl",
	"application/x-mpegurl",
	"application/ogg",
	"application/x-scpls",
	"application/xspf+xml",
	"application/octet-stream",
}

var playlistExtensions = []string{".m3u", ".m3u8", ".pls", ".xspf", ".asx"}

func newProbeClient() *http.Client {
	return &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
}

// resolveDirect accepts any http(s) URL that looks like a media stream or a
// radio playlist. Icecast names (icy-name) become the title.
func (r *Resolver) resolveDirect(ctx context.Context, input, requestedBy string) ([]track.Track, error) {
	info, err := r.probe(ctx, input)
	if err != nil {
		return nil, err
	}
	if !isStreamContentType(info.contentType) && !isPlaylistURL(info.finalURL) {
		return nil, fmt.Errorf("not a media stream: content-type %q, url %s", info.contentType, info.finalURL)
	}

	title := info.icyName
	if title == "" {
		title = titleFromURL(info.finalURL)
	}
	return []track.Track{{
		Title:       title,
		Locator:     input,
		RequestedBy: requestedBy,
		Source:      track.SourceStream,
		StreamURL:   info.finalURL,
	}}, nil
}

type probeResult struct {
	contentType string
	finalURL    string
	icyName     string
}

// probe sends HEAD and falls back to a GET when the server rejects HEAD.
func (r *Resolver) probe(ctx context.Context, rawURL string) (probeResult, error) {
	resp, err := r.request(ctx, http.MethodHead, rawURL)
	if err != nil || resp.StatusCode >= 400 {
		if resp != nil {
			resp.Body.Close()
		}
		resp, err = r.request(ctx, http.MethodGet, rawURL)
		if err != nil {
			return probeResult{}, fmt.Errorf("probe %s: %w", rawURL, err)
		}
	}
	defer resp.Body.Close()
	// Live streams never end, read a little so the connection can be reused.
	_, _ = io.CopyN(io.Discard, resp.Body, 512)

	if resp.StatusCode >= 400 {
		return probeResult{}, fmt.Errorf("probe %s: status %d", rawURL, resp.StatusCode)
	}
	return probeResult{
		contentType: resp.Header.Get("Content-Type"),
		finalURL:    resp.Request.URL.String(),
		icyName:     strings.TrimSpace(resp.Header.Get("icy-name")),
	}, nil
}

func (r *Resolver) request(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Icy-MetaData", "1")
	return r.probeHTTP.Do(req)
}

func isStreamContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(contentType)
	}
	mediaType = strings.ToLower(mediaType)
	for _, allowed := range streamContentTypes {
		if strings.HasPrefix(mediaType, allowed) {
			return true
		}
	}
	return false
}

func isPlaylistURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return slices.Contains(playlistExtensions, strings.ToLower(path.Ext(u.Path)))
}

func titleFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if base := path.Base(u.Path); base != "/" && base != "." {
		return u.Host + "/" + base
	}
	return u.Host
}

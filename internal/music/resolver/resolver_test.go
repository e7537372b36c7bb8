package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/keshon/server-otaku/internal/music/player"
	"github.com/keshon/server-otaku/internal/music/track"
	"github.com/keshon/server-otaku/pkg/retrylimit"
	"github.com/kkdai/youtube/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeYouTube struct {
	videos    map[string]*youtube.Video
	playlists map[string]*youtube.Playlist
	streamURL string
	calls     int
}

func (f *fakeYouTube) GetVideoContext(ctx context.Context, id string) (*youtube.Video, error) {
	f.calls++
	if v, ok := f.videos[id]; ok {
		return v, nil
	}
	return nil, youtube.ErrVideoPrivate
}

func (f *fakeYouTube) GetPlaylistContext(ctx context.Context, url string) (*youtube.Playlist, error) {
	for id, p := range f.playlists {
		if url == "https://www.youtube.com/playlist?list="+id {
			return p, nil
		}
	}
	return nil, youtube.ErrInvalidPlaylist
}

func (f *fakeYouTube) GetStreamURLContext(ctx context.Context, v *youtube.Video, format *youtube.Format) (string, error) {
	if f.streamURL == "" {
		return "", errors.New("signature decipher failed")
	}
	return fmt.Sprintf("%s?itag=%d", f.streamURL, format.ItagNo), nil
}

func newTestResolver(yt *fakeYouTube, run runFunc) *Resolver {
	if run == nil {
		run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return nil, errors.New("yt-dlp: executable file not found")
		}
	}
	return &Resolver{
		youtube:   yt,
		http:      http.DefaultClient,
		probeHTTP: newProbeClient(),
		run:       run,
		policy:    retrylimit.Policy{Attempts: 2, Delay: time.Millisecond},
		baseURL:   "https://www.youtube.com",
	}
}

func TestResolve_EmptyInput(t *testing.T) {
	r := newTestResolver(&fakeYouTube{}, nil)

	_, err := r.Resolve(context.Background(), "   ", "user")
	assert.ErrorIs(t, err, player.ErrTrackResolutionFailed)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestResolve_YouTubeVideo(t *testing.T) {
	yt := &fakeYouTube{videos: map[string]*youtube.Video{
		"dQw4w9WgXcQ": {ID: "dQw4w9WgXcQ", Title: "Never Gonna Give You Up", Duration: 213 * time.Second},
	}}
	r := newTestResolver(yt, nil)

	for _, link := range []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42",
		"https://youtu.be/dQw4w9WgXcQ?si=abc",
		"https://music.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://www.youtube.com/shorts/dQw4w9WgXcQ",
	} {
		tracks, err := r.Resolve(context.Background(), link, "user-1")
		require.NoError(t, err, link)
		require.Len(t, tracks, 1)
		assert.Equal(t, "Never Gonna Give You Up", tracks[0].Title)
		assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", tracks[0].Locator)
		assert.Equal(t, 213*time.Second, tracks[0].Duration)
		assert.Equal(t, "user-1", tracks[0].RequestedBy)
		assert.Equal(t, track.SourceYouTube, tracks[0].Source)
	}
}

func TestResolve_PrivateVideoIsNotRetried(t *testing.T) {
	yt := &fakeYouTube{}
	r := newTestResolver(yt, nil)

	_, err := r.Resolve(context.Background(), "https://youtu.be/aaaaaaaaaaa", "user")
	assert.ErrorIs(t, err, player.ErrTrackResolutionFailed)
	assert.ErrorIs(t, err, youtube.ErrVideoPrivate)
	assert.Equal(t, 1, yt.calls)
}

func TestResolve_Playlist(t *testing.T) {
	yt := &fakeYouTube{playlists: map[string]*youtube.Playlist{
		"PL123": {ID: "PL123", Videos: []*youtube.PlaylistEntry{
			{ID: "aaaaaaaaaaa", Title: "One", Duration: time.Minute},
			nil,
			{ID: "", Title: "deleted"},
			{ID: "bbbbbbbbbbb", Title: "Two"},
		}},
	}}
	r := newTestResolver(yt, nil)

	tracks, err := r.Resolve(context.Background(), "https://www.youtube.com/watch?v=aaaaaaaaaaa&list=PL123", "user")
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "One", tracks[0].Title)
	assert.Equal(t, "https://www.youtube.com/watch?v=bbbbbbbbbbb", tracks[1].Locator)
}

func TestResolve_MixIsSingleVideo(t *testing.T) {
	yt := &fakeYouTube{videos: map[string]*youtube.Video{
		"aaaaaaaaaaa": {ID: "aaaaaaaaaaa", Title: "Mix start"},
	}}
	r := newTestResolver(yt, nil)

	tracks, err := r.Resolve(context.Background(), "https://www.youtube.com/watch?v=aaaaaaaaaaa&list=RDaaaaaaaaaaa", "user")
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "Mix start", tracks[0].Title)
}

func TestResolve_DirectStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/live.mp3":
			w.Header().Set("Content-Type", "audio/mpeg")
			w.Header().Set("icy-name", "Night Radio")
		case "/page":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		case "/noheadsupport.ogg":
			if req.Method == http.MethodHead {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			w.Header().Set("Content-Type", "application/ogg")
		default:
			http.NotFound(w, req)
		}
	}))
	defer srv.Close()

	r := newTestResolver(&fakeYouTube{}, nil)
	ctx := context.Background()

	tracks, err := r.Resolve(ctx, srv.URL+"/live.mp3", "user")
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "Night Radio", tracks[0].Title)
	assert.Equal(t, track.SourceStream, tracks[0].Source)
	assert.Equal(t, srv.URL+"/live.mp3", tracks[0].StreamURL)
	assert.False(t, tracks[0].DurationKnown())

	tracks, err = r.Resolve(ctx, srv.URL+"/noheadsupport.ogg", "user")
	require.NoError(t, err)
	assert.Contains(t, tracks[0].Title, "noheadsupport.ogg")

	_, err = r.Resolve(ctx, srv.URL+"/page", "user")
	assert.ErrorIs(t, err, player.ErrTrackResolutionFailed)

	_, err = r.Resolve(ctx, srv.URL+"/missing", "user")
	assert.ErrorIs(t, err, player.ErrTrackResolutionFailed)
}

func TestResolve_SearchWithYTDLP(t *testing.T) {
	var gotArgs []string
	run := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = args
		return []byte(`{"id":"ccccccccccc","title":"Lo-fi beats","duration":185.5,"webpage_url":"https://www.youtube.com/watch?v=ccccccccccc"}` + "\n"), nil
	}
	r := newTestResolver(&fakeYouTube{}, run)

	tracks, err := r.Resolve(context.Background(), "lofi beats", "user-2")
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "Lo-fi beats", tracks[0].Title)
	assert.Equal(t, track.SourceSearch, tracks[0].Source)
	assert.Equal(t, "user-2", tracks[0].RequestedBy)
	assert.Equal(t, 185500*time.Millisecond, tracks[0].Duration)
	assert.Contains(t, gotArgs, "ytsearch1:lofi beats")
}

func TestResolve_SearchFallsBackToResultsPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/results", req.URL.Path)
		assert.Equal(t, "some song", req.URL.Query().Get("search_query"))
		fmt.Fprint(w, `{"videoRenderer":{"navigationEndpoint":{"url":"/watch?v=ddddddddddd&pp=abc"}}}`)
	}))
	defer srv.Close()

	yt := &fakeYouTube{videos: map[string]*youtube.Video{
		"ddddddddddd": {ID: "ddddddddddd", Title: "Some Song (Official)", Duration: 3 * time.Minute},
	}}
	r := newTestResolver(yt, nil)
	r.baseURL = srv.URL

	tracks, err := r.Resolve(context.Background(), "some song", "user")
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "Some Song (Official)", tracks[0].Title)
	assert.Equal(t, "https://www.youtube.com/watch?v=ddddddddddd", tracks[0].Locator)
}

func TestResolve_SearchNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, "<html>nothing here</html>")
	}))
	defer srv.Close()

	r := newTestResolver(&fakeYouTube{}, nil)
	r.baseURL = srv.URL

	_, err := r.Resolve(context.Background(), "zzzz", "user")
	assert.ErrorIs(t, err, player.ErrTrackResolutionFailed)
	assert.ErrorIs(t, err, ErrNoSearchResults)
}

func TestStreamURL(t *testing.T) {
	yt := &fakeYouTube{
		videos: map[string]*youtube.Video{
			"aaaaaaaaaaa": {ID: "aaaaaaaaaaa", Formats: youtube.FormatList{
				{ItagNo: 18, MimeType: "video/mp4", AudioChannels: 2, Bitrate: 500000},
				{ItagNo: 139, MimeType: "audio/mp4", AudioChannels: 2, Bitrate: 48000},
				{ItagNo: 251, MimeType: "audio/webm; codecs=opus", AudioChannels: 2, Bitrate: 160000},
				{ItagNo: 137, MimeType: "video/mp4", Bitrate: 4000000},
			}},
		},
		streamURL: "https://rr1.googlevideo.com/videoplayback",
	}
	r := newTestResolver(yt, nil)
	ctx := context.Background()

	link, err := r.StreamURL(ctx, track.Track{Locator: "https://www.youtube.com/watch?v=aaaaaaaaaaa"})
	require.NoError(t, err)
	assert.Equal(t, "https://rr1.googlevideo.com/videoplayback?itag=251", link)

	link, err = r.StreamURL(ctx, track.Track{Locator: "https://radio.example/live", StreamURL: "https://cdn.radio.example/live.mp3"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.radio.example/live.mp3", link)
}

func TestStreamURL_FallsBackToYTDLP(t *testing.T) {
	yt := &fakeYouTube{videos: map[string]*youtube.Video{
		"aaaaaaaaaaa": {ID: "aaaaaaaaaaa", Formats: youtube.FormatList{{ItagNo: 251, MimeType: "audio/webm", AudioChannels: 2}}},
	}}
	run := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("https://fallback.example/audio\n"), nil
	}
	r := newTestResolver(yt, run)

	link, err := r.StreamURL(context.Background(), track.Track{Locator: "https://youtu.be/aaaaaaaaaaa"})
	require.NoError(t, err)
	assert.Equal(t, "https://fallback.example/audio", link)
}

func TestURLHelpers(t *testing.T) {
	assert.True(t, isYouTubeURL("https://youtu.be/abc"))
	assert.True(t, isYouTubeURL("https://m.youtube.com/watch?v=abc"))
	assert.False(t, isYouTubeURL("https://example.com/youtube.com"))

	_, err := videoID("https://www.youtube.com/channel/UC123")
	assert.Error(t, err)

	assert.Equal(t, "PLx", playlistID("https://www.youtube.com/playlist?list=PLx"))
	assert.Empty(t, playlistID("https://www.youtube.com/watch?v=aaaaaaaaaaa"))

	assert.True(t, isStreamContentType("audio/aac"))
	assert.True(t, isStreamContentType("Application/OGG"))
	assert.False(t, isStreamContentType("text/html; charset=utf-8"))
	assert.True(t, isPlaylistURL("https://radio.example/stream.M3U8?token=1"))
}

func TestNewHTTPClient(t *testing.T) {
	c, err := newHTTPClient("")
	require.NoError(t, err)
	assert.Nil(t, c.Transport)

	for _, p := range []string{"http://127.0.0.1:3128", "socks5://user:pw@127.0.0.1:1080", "socks4://127.0.0.1:1080"} {
		c, err := newHTTPClient(p)
		require.NoError(t, err, p)
		assert.NotNil(t, c.Transport, p)
	}

	_, err = newHTTPClient("ftp://127.0.0.1")
	assert.Error(t, err)
}

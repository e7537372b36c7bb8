package resolver

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/keshon/server-otaku/internal/music/track"
	"github.com/keshon/server-otaku/pkg/retrylimit"
	"github.com/kkdai/youtube/v2"
	"github.com/samber/lo"
)

// maxPlaylistTracks caps how many entries one playlist link may add.
const maxPlaylistTracks = 100

// youtubeClient is the part of *youtube.Client the resolver uses.
type youtubeClient interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetPlaylistContext(ctx context.Context, url string) (*youtube.Playlist, error)
	GetStreamURLContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (string, error)
}

func (r *Resolver) resolveYouTube(ctx context.Context, input, requestedBy string) ([]track.Track, error) {
	if id := playlistID(input); id != "" {
		return r.resolvePlaylist(ctx, id, requestedBy)
	}

	id, err := videoID(input)
	if err != nil {
		return nil, err
	}
	video, err := r.video(ctx, id)
	if err != nil {
		return nil, err
	}
	return []track.Track{videoTrack(video, requestedBy)}, nil
}

func (r *Resolver) resolvePlaylist(ctx context.Context, id, requestedBy string) ([]track.Track, error) {
	var playlist *youtube.Playlist
	err := retrylimit.Do(ctx, r.limiter, r.policy, func(ctx context.Context) error {
		var err error
		playlist, err = r.youtube.GetPlaylistContext(ctx, "https://www.youtube.com/playlist?list="+id)
		return classifyYouTubeErr(err)
	})
	if err != nil {
		return nil, fmt.Errorf("playlist %s: %w", id, err)
	}

	entries := lo.Filter(playlist.Videos, func(e *youtube.PlaylistEntry, _ int) bool {
		return e != nil && e.ID != ""
	})
	if len(entries) == 0 {
		return nil, fmt.Errorf("playlist %s has no playable videos", id)
	}
	if len(entries) > maxPlaylistTracks {
		entries = entries[:maxPlaylistTracks]
	}

	return lo.Map(entries, func(e *youtube.PlaylistEntry, _ int) track.Track {
		return track.Track{
			Title:       e.Title,
			Locator:     watchURL(e.ID),
			Duration:    e.Duration,
			RequestedBy: requestedBy,
			Source:      track.SourceYouTube,
		}
	}), nil
}

func (r *Resolver) video(ctx context.Context, id string) (*youtube.Video, error) {
	var video *youtube.Video
	err := retrylimit.Do(ctx, r.limiter, r.policy, func(ctx context.Context) error {
		var err error
		video, err = r.youtube.GetVideoContext(ctx, id)
		return classifyYouTubeErr(err)
	})
	if err != nil {
		return nil, fmt.Errorf("video %s: %w", id, err)
	}
	return video, nil
}

func videoTrack(v *youtube.Video, requestedBy string) track.Track {
	return track.Track{
		Title:       v.Title,
		Locator:     watchURL(v.ID),
		Duration:    v.Duration,
		RequestedBy: requestedBy,
		Source:      track.SourceYouTube,
	}
}

// youtubeStreamURL picks the best audio-only format of a video, falling back
// to any format with an audio track.
func (r *Resolver) youtubeStreamURL(ctx context.Context, locator string) (string, error) {
	id, err := videoID(locator)
	if err != nil {
		return "", err
	}
	video, err := r.video(ctx, id)
	if err != nil {
		return "", err
	}

	formats := bestAudioFormats(video.Formats)
	if len(formats) == 0 {
		return "", errors.New("no audio formats")
	}
	return r.youtube.GetStreamURLContext(ctx, video, &formats[0])
}

func bestAudioFormats(all youtube.FormatList) []youtube.Format {
	withAudio := lo.Filter(all, func(f youtube.Format, _ int) bool { return f.AudioChannels > 0 })
	audioOnly := lo.Filter(withAudio, func(f youtube.Format, _ int) bool {
		return strings.HasPrefix(f.MimeType, "audio/")
	})
	if len(audioOnly) == 0 {
		audioOnly = withAudio
	}
	slices.SortStableFunc(audioOnly, func(a, b youtube.Format) int { return b.Bitrate - a.Bitrate })
	return audioOnly
}

// classifyYouTubeErr marks errors that will not go away on retry.
func classifyYouTubeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, youtube.ErrVideoPrivate),
		errors.Is(err, youtube.ErrLoginRequired),
		errors.Is(err, youtube.ErrInvalidPlaylist):
		return retrylimit.Permanent(err)
	}
	var code youtube.ErrUnexpectedStatusCode
	if errors.As(err, &code) {
		return fmt.Errorf("%w: %w", &retrylimit.StatusError{Code: int(code), URL: "youtube"}, err)
	}
	return err
}

package ytdlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fjmorton/trackforge/internal/media"
	"github.com/fjmorton/trackforge/internal/tool"
	"github.com/fjmorton/trackforge/pkg/logger"
)

type (
	// Resolver performs a metadata-only query against a URL (no audio is
	// downloaded) to discover whether it denotes a single item, an item
	// split in to chapters, or a playlist of items.
	Resolver struct {
		config Config
		runner tool.Runner
	}

	// metadataPayload is the subset of yt-dlp's '--dump-single-json' output
	// that resolution cares about.
	metadataPayload struct {
		Type     string           `json:"_type"`
		Title    string           `json:"title"`
		Entries  []entryPayload   `json:"entries"`
		Chapters []chapterPayload `json:"chapters"`
	}

	entryPayload struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	}

	chapterPayload struct {
		Title     string  `json:"title"`
		StartTime float64 `json:"start_time"`
		EndTime   float64 `json:"end_time"`
	}
)

func NewResolver(config Config, runner tool.Runner) *Resolver {
	return &Resolver{config: config, runner: runner}
}

// Resolve queries the URL for it's metadata and returns the ordered track
// listing it denotes. The returned descriptors have contiguous 1-based
// indices matching the sources declared ordering. A URL which yields zero
// usable tracks fails with a ResolutionError, never an empty success.
func (resolver *Resolver) Resolve(ctx context.Context, url string) (*media.Source, error) {
	output, err := resolver.runner.Run(ctx, resolver.config.BinaryPath,
		"--dump-single-json",
		"--flat-playlist",
		"--no-warnings",
		url,
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, &ResolutionError{URL: url, cause: err}
	}

	var payload metadataPayload
	if err := json.Unmarshal([]byte(output), &payload); err != nil {
		return nil, &ResolutionError{URL: url, cause: fmt.Errorf("malformed metadata output: %w", err)}
	}

	source := &media.Source{URL: url, Title: payload.Title}
	if source.Title == "" {
		source.Title = "Unknown Title"
	}

	switch {
	case payload.Type == "playlist":
		source.Tracks = tracksFromEntries(payload.Entries)
	case len(payload.Chapters) > 1:
		source.Tracks = tracksFromChapters(url, payload.Chapters)
	default:
		source.Tracks = []media.TrackDescriptor{{
			Index: 1,
			Title: source.Title,
			Ref:   media.SourceRef{URL: url},
		}}
	}

	if len(source.Tracks) == 0 {
		return nil, &ResolutionError{URL: url, cause: errors.New("collection contains no usable tracks")}
	}

	log.Emit(logger.SUCCESS, "Resolved '%s' to %d track(s)\n", url, len(source.Tracks))
	return source, nil
}

// tracksFromEntries converts flat playlist entries in to track descriptors,
// preserving the playlists declared ordering. Entries with no URL cannot be
// handed to the extractor and are dropped (indices stay contiguous).
func tracksFromEntries(entries []entryPayload) []media.TrackDescriptor {
	tracks := make([]media.TrackDescriptor, 0, len(entries))
	for _, entry := range entries {
		if strings.TrimSpace(entry.URL) == "" {
			continue
		}

		index := len(tracks) + 1
		title := entry.Title
		if title == "" {
			title = fmt.Sprintf("Track %d", index)
		}

		tracks = append(tracks, media.TrackDescriptor{
			Index: index,
			Title: title,
			Ref:   media.SourceRef{URL: entry.URL},
		})
	}

	return tracks
}

// tracksFromChapters converts an items chapter markers in to track
// descriptors which share the items URL, each narrowed to the chapters
// time range.
func tracksFromChapters(url string, chapters []chapterPayload) []media.TrackDescriptor {
	tracks := make([]media.TrackDescriptor, 0, len(chapters))
	for _, chapter := range chapters {
		if chapter.EndTime <= chapter.StartTime {
			continue
		}

		index := len(tracks) + 1
		title := chapter.Title
		if title == "" {
			title = fmt.Sprintf("Chapter %d", index)
		}

		tracks = append(tracks, media.TrackDescriptor{
			Index: index,
			Title: title,
			Ref: media.SourceRef{
				URL:     url,
				Section: fmt.Sprintf("*%.2f-%.2f", chapter.StartTime, chapter.EndTime),
			},
		})
	}

	return tracks
}

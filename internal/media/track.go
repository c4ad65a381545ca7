package media

import (
	"fmt"
	"regexp"
	"strings"
)

// FormatMP3 is the fixed container/codec identifier that every extracted
// artifact is transcoded to before normalization and packaging.
const FormatMP3 = "mp3"

type (
	// SourceRef is the handle the extractor uses to acquire the audio for a
	// single track. For playlist entries the URL differs per track; for
	// chapter tracks the URL is shared and Section narrows the download
	// to the chapters time range (yt-dlp '--download-sections' syntax).
	SourceRef struct {
		URL     string
		Section string
	}

	// TrackDescriptor identifies one extractable audio item within a source
	// URL. Indices are 1-based, contiguous, and reflect the sources declared
	// playback/listing order.
	TrackDescriptor struct {
		Index int
		Title string
		Ref   SourceRef
	}

	// Source is the outcome of resolving a URL: the collection title and an
	// ordered set of track descriptors (a single-track URL yields exactly one).
	Source struct {
		URL    string
		Title  string
		Tracks []TrackDescriptor
	}

	// AudioArtifact is a decoded audio file produced for a single track. It is
	// owned exclusively by one pipeline run until packaging hands the final
	// output to the caller.
	AudioArtifact struct {
		Track      TrackDescriptor
		Path       string
		Format     string
		Normalized bool
	}
)

// OutputName derives the stable, collision-free file name for this track
// within a run: a zero-padded index followed by the sanitized title.
func (descriptor *TrackDescriptor) OutputName(extension string) string {
	return fmt.Sprintf("%02d - %s.%s", descriptor.Index, SanitizeTitle(descriptor.Title), extension)
}

func (source *Source) IsCollection() bool { return len(source.Tracks) > 1 }

var (
	illegalFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	repeatedWhitespace   = regexp.MustCompile(`\s+`)
)

// SanitizeTitle strips characters from the title which are not safe to use
// inside a file name, collapsing any runs of whitespace left behind. Titles
// which sanitize to nothing become "Untitled" so the callers derived file
// names never collide with the containing directory.
func SanitizeTitle(title string) string {
	clean := illegalFilenameChars.ReplaceAllString(title, "")
	clean = repeatedWhitespace.ReplaceAllString(clean, " ")
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return "Untitled"
	}

	return clean
}

// Acquisition of audio from user-supplied URLs via the yt-dlp command line
// tool: resolving a URL to it's track listing, and extracting/transcoding
// individual tracks to the pipelines fixed audio format.
package ytdlp

import (
	"fmt"

	"github.com/fjmorton/trackforge/internal/media"
	"github.com/fjmorton/trackforge/pkg/logger"
)

var log = logger.Get("YtDlp")

type Config struct {
	BinaryPath string
}

// ResolutionError indicates that a URL could not be resolved to a usable
// set of tracks: the URL is unreachable, unsupported, or the collection
// it denotes contains nothing extractable.
type ResolutionError struct {
	URL   string
	cause error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve '%s': %v", e.URL, e.cause)
}

func (e *ResolutionError) Unwrap() error { return e.cause }

// ExtractionError indicates that a single tracks download or decode failed.
// The descriptor is retained so callers can report which track was at fault.
type ExtractionError struct {
	Track media.TrackDescriptor
	cause error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract track %d (%s): %v", e.Track.Index, e.Track.Title, e.cause)
}

func (e *ExtractionError) Unwrap() error { return e.cause }

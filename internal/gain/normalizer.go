// Loudness normalization of extracted audio artifacts via the mp3gain
// command line tool.
package gain

import (
	"context"
	"fmt"

	"github.com/fjmorton/trackforge/internal/media"
	"github.com/fjmorton/trackforge/internal/tool"
	"github.com/fjmorton/trackforge/pkg/logger"
)

var log = logger.Get("Gain")

type Config struct {
	BinaryPath string
}

// NormalizationError indicates an artifacts gain adjustment failed: the file
// is unreadable, or is not a valid audio stream.
type NormalizationError struct {
	Track media.TrackDescriptor
	cause error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("failed to normalize track %d (%s): %v", e.Track.Index, e.Track.Title, e.cause)
}

func (e *NormalizationError) Unwrap() error { return e.cause }

// Normalizer applies ReplayGain track gain to an artifact in place. The
// adjustment is deterministic and idempotent (mp3gain's own contract): a
// second pass over an already-normalized file leaves it unchanged, and the
// files path and format are never altered.
type Normalizer struct {
	config Config
	runner tool.Runner
}

func NewNormalizer(config Config, runner tool.Runner) *Normalizer {
	return &Normalizer{config: config, runner: runner}
}

// Normalize mutates the artifacts file in place and flips it's Normalized
// flag on success.
func (normalizer *Normalizer) Normalize(ctx context.Context, artifact *media.AudioArtifact) error {
	// '-r' applies track gain, '-k' lowers the adjustment where needed to
	// avoid clipping rather than skipping the file.
	if _, err := normalizer.runner.Run(ctx, normalizer.config.BinaryPath, "-r", "-k", artifact.Path); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return &NormalizationError{Track: artifact.Track, cause: err}
	}

	artifact.Normalized = true
	log.Emit(logger.SUCCESS, "Normalized track %d (%s)\n", artifact.Track.Index, artifact.Track.Title)
	return nil
}

package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fjmorton/trackforge/internal/ffmpeg"
	"github.com/fjmorton/trackforge/internal/media"
	"github.com/fjmorton/trackforge/internal/tool"
	"github.com/fjmorton/trackforge/pkg/logger"
)

// Extractor downloads the best available audio stream for a single track
// descriptor and transcodes it to the pipelines fixed target format. Exactly
// one file is left in the runs working directory per successful call; a
// failed call removes anything partially written before returning.
type Extractor struct {
	config       Config
	ffmpegConfig *ffmpeg.Config
	runner       tool.Runner
}

func NewExtractor(config Config, ffmpegConfig *ffmpeg.Config, runner tool.Runner) *Extractor {
	return &Extractor{config: config, ffmpegConfig: ffmpegConfig, runner: runner}
}

// Extract acquires the audio for the given descriptor in to workDir. The
// produced artifact is named from the descriptors index and sanitized title,
// which keeps names stable and collision-free across tracks of the same run.
func (extractor *Extractor) Extract(ctx context.Context, descriptor media.TrackDescriptor, workDir string) (*media.AudioArtifact, error) {
	rawPath, err := extractor.downloadRawAudio(ctx, descriptor, workDir)
	if err != nil {
		return nil, err
	}
	defer os.Remove(rawPath)

	outputPath := filepath.Join(workDir, descriptor.OutputName(media.FormatMP3))
	command := ffmpeg.NewCmd(rawPath, outputPath, extractor.ffmpegConfig)
	if err := command.Run(ctx, ffmpeg.MP3Options(), func(progress *ffmpeg.Progress) {
		log.Emit(logger.VERBOSE, "Transcode progress for track %d: %v%%\n", descriptor.Index, progress.Progress)
	}); err != nil {
		// Fail clean: a half-written MP3 must not outlive the error.
		os.Remove(outputPath)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, &ExtractionError{Track: descriptor, cause: err}
	}

	log.Emit(logger.SUCCESS, "Extracted track %d (%s) to %s\n", descriptor.Index, descriptor.Title, outputPath)
	return &media.AudioArtifact{
		Track:  descriptor,
		Path:   outputPath,
		Format: media.FormatMP3,
	}, nil
}

// downloadRawAudio invokes yt-dlp to fetch the tracks audio stream in it's
// native container, returning the path of the downloaded file (yt-dlp decides
// the extension, so the final path is read back from it's output).
func (extractor *Extractor) downloadRawAudio(ctx context.Context, descriptor media.TrackDescriptor, workDir string) (string, error) {
	outputTemplate := filepath.Join(workDir, fmt.Sprintf("raw-%02d.%%(ext)s", descriptor.Index))
	args := []string{
		"--format", "bestaudio/best",
		"--no-playlist",
		"--no-warnings",
		"--restrict-filenames",
		"--print", "after_move:filepath",
		"--output", outputTemplate,
	}

	if descriptor.Ref.Section != "" {
		args = append(args, "--download-sections", descriptor.Ref.Section, "--force-keyframes-at-cuts")
	}
	args = append(args, descriptor.Ref.URL)

	output, err := extractor.runner.Run(ctx, extractor.config.BinaryPath, args...)
	if err != nil {
		extractor.removePartialDownloads(descriptor, workDir)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		return "", &ExtractionError{Track: descriptor, cause: err}
	}

	rawPath := lastNonEmptyLine(output)
	if rawPath == "" {
		return "", &ExtractionError{Track: descriptor, cause: errors.New("tool reported no output file")}
	}

	if _, err := os.Stat(rawPath); err != nil {
		return "", &ExtractionError{Track: descriptor, cause: fmt.Errorf("reported output file is missing: %w", err)}
	}

	return rawPath, nil
}

// removePartialDownloads clears any leftovers of an aborted download,
// including yt-dlp's '.part' continuation files.
func (extractor *Extractor) removePartialDownloads(descriptor media.TrackDescriptor, workDir string) {
	pattern := filepath.Join(workDir, fmt.Sprintf("raw-%02d.*", descriptor.Index))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return
	}

	for _, match := range matches {
		log.Emit(logger.REMOVE, "Removing partial download %s\n", match)
		os.Remove(match)
	}
}

func lastNonEmptyLine(output string) string {
	lines := strings.Split(output, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}

	return ""
}

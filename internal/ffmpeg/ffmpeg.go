package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/fjmorton/trackforge/internal/media"
	"github.com/fjmorton/trackforge/pkg/logger"
	"github.com/floostack/transcoder"
	"github.com/floostack/transcoder/ffmpeg"
)

var log = logger.Get("FFmpeg")

type Config struct {
	FfmpegBinPath  string
	FfprobeBinPath string
}

type Progress struct {
	FramesProcessed string
	CurrentTime     string
	CurrentBitrate  string
	Progress        float64
	Speed           string
}

// TranscodeCommand wraps a single ffmpeg invocation which decodes the raw
// audio stream the extractor downloaded and re-encodes it to the pipelines
// fixed target format.
type TranscodeCommand struct {
	inputPath  string
	outputPath string
	config     *Config
}

func NewCmd(input string, output string, config *Config) *TranscodeCommand {
	return &TranscodeCommand{input, output, config}
}

// MP3Options returns the fixed audio-only encoding options every extracted
// track is transcoded with (320kbps constant bitrate MP3, video discarded).
func MP3Options() transcoder.Options {
	outputFormat := media.FormatMP3
	audioCodec := "libmp3lame"
	audioBitrate := "320k"
	skipVideo := true
	overwrite := true

	return &ffmpeg.Options{
		OutputFormat: &outputFormat,
		AudioCodec:   &audioCodec,
		AudioBitrate: &audioBitrate,
		SkipVideo:    &skipVideo,
		Overwrite:    &overwrite,
	}
}

// Run starts the ffmpeg process and blocks until it completes, cancelling the
// underlying process if the provided context expires. Progress updates parsed
// from ffmpeg's output are delivered to updateHandler as they arrive.
func (cmd *TranscodeCommand) Run(ctx context.Context, options transcoder.Options, updateHandler func(*Progress)) error {
	instance := ffmpeg.
		New(&ffmpeg.Config{
			ProgressEnabled: true,
			FfmpegBinPath:   cmd.config.FfmpegBinPath,
			FfprobeBinPath:  cmd.config.FfprobeBinPath,
		}).
		Input(cmd.inputPath).
		Output(cmd.outputPath).
		WithContext(&ctx)

	if err := os.MkdirAll(filepath.Dir(cmd.outputPath), os.ModeDir|os.ModePerm); err != nil {
		return fmt.Errorf("failed to create output directory for transcode: %w", err)
	}

	progressChannel, err := instance.Start(options)
	if err != nil {
		return parseFfmpegError(err)
	}

	for {
		prog, ok := <-progressChannel
		if !ok {
			log.Emit(logger.DEBUG, "FFmpeg command for %s has closed it's progress channel\n", cmd.inputPath)
			return ctx.Err()
		}

		if updateHandler != nil {
			updateHandler(&Progress{
				FramesProcessed: prog.GetFramesProcessed(),
				CurrentTime:     prog.GetCurrentTime(),
				CurrentBitrate:  prog.GetCurrentBitrate(),
				Progress:        prog.GetProgress(),
				Speed:           prog.GetSpeed(),
			})
		}
	}
}

func (cmd *TranscodeCommand) InputPath() string { return cmd.inputPath }

func (cmd *TranscodeCommand) OutputPath() string { return cmd.outputPath }

func (cmd *TranscodeCommand) String() string {
	return fmt.Sprintf("{ffmpeg in_path=%s | out_path=%s}", cmd.inputPath, cmd.outputPath)
}

// parseFfmpegError tries to pick the relevant information out of the HUGE
// output log from ffmpeg. The error we get contains lots of information about
// how the binary was compiled... this is useless info, we just want the
// 'message' JSON that is encoded inside.
func parseFfmpegError(err error) error {
	messageMatcher := regexp.MustCompile(`(?s)message: ({.*})`)
	groups := messageMatcher.FindStringSubmatch(err.Error())
	if len(groups) == 0 {
		return err
	}

	var out map[string]interface{}
	if jsonErr := json.Unmarshal([]byte(groups[1]), &out); jsonErr != nil {
		// We failed to extract the info.. just use the entire string as our error
		return errors.New(groups[1])
	}

	if exception, ok := out["error"].(map[string]interface{}); ok {
		if str, ok := exception["string"].(string); ok {
			return errors.New(str)
		}
	}

	return errors.New(groups[1])
}

package ytdlp_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fjmorton/trackforge/internal/ffmpeg"
	"github.com/fjmorton/trackforge/internal/media"
	"github.com/fjmorton/trackforge/internal/ytdlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestExtractor(runnerMock *mockRunner) *ytdlp.Extractor {
	return ytdlp.NewExtractor(
		ytdlp.Config{BinaryPath: "yt-dlp"},
		&ffmpeg.Config{FfmpegBinPath: "ffmpeg", FfprobeBinPath: "ffprobe"},
		runnerMock,
	)
}

func Test_Extract_DownloadFailureRemovesPartialFiles(t *testing.T) {
	t.Parallel()
	workDir := t.TempDir()

	// Simulate an aborted download leaving a continuation file behind.
	partialPath := filepath.Join(workDir, "raw-01.webm.part")
	require.Nil(t, os.WriteFile(partialPath, []byte("partial"), 0644))

	runnerMock := new(mockRunner)
	runnerMock.On("Run", mock.Anything, "yt-dlp", mock.Anything).Return("", errExpected)

	track := media.TrackDescriptor{Index: 1, Title: "Doomed Track", Ref: media.SourceRef{URL: "https://media.example/a"}}
	artifact, err := newTestExtractor(runnerMock).Extract(context.Background(), track, workDir)

	assert.Nil(t, artifact)
	var extractionErr *ytdlp.ExtractionError
	require.True(t, errors.As(err, &extractionErr))
	assert.Equal(t, track, extractionErr.Track)
	assert.NoFileExists(t, partialPath)

	entries, readErr := os.ReadDir(workDir)
	require.Nil(t, readErr)
	assert.Empty(t, entries, "a failed extraction must not leave files in the working directory")
}

func Test_Extract_MissingToolOutputReportsExtractionError(t *testing.T) {
	t.Parallel()
	runnerMock := new(mockRunner)
	runnerMock.On("Run", mock.Anything, "yt-dlp", mock.Anything).Return("\n\n", nil)

	track := media.TrackDescriptor{Index: 1, Title: "Silent Tool", Ref: media.SourceRef{URL: "https://media.example/a"}}
	_, err := newTestExtractor(runnerMock).Extract(context.Background(), track, t.TempDir())

	var extractionErr *ytdlp.ExtractionError
	assert.True(t, errors.As(err, &extractionErr))
}

func Test_Extract_ReportedFileMustExist(t *testing.T) {
	t.Parallel()
	workDir := t.TempDir()

	runnerMock := new(mockRunner)
	runnerMock.On("Run", mock.Anything, "yt-dlp", mock.Anything).
		Return(filepath.Join(workDir, "raw-01.webm")+"\n", nil)

	track := media.TrackDescriptor{Index: 1, Title: "Ghost File", Ref: media.SourceRef{URL: "https://media.example/a"}}
	_, err := newTestExtractor(runnerMock).Extract(context.Background(), track, workDir)

	var extractionErr *ytdlp.ExtractionError
	assert.True(t, errors.As(err, &extractionErr))
}

func Test_Extract_ChapterSectionNarrowsTheDownload(t *testing.T) {
	t.Parallel()
	runnerMock := new(mockRunner)
	runnerMock.On("Run", mock.Anything, "yt-dlp", mock.MatchedBy(func(args []string) bool {
		return contains(args, "--download-sections") && contains(args, "*0.00-62.50") && contains(args, "--force-keyframes-at-cuts")
	})).Return("", errExpected)

	track := media.TrackDescriptor{
		Index: 2,
		Title: "Second Movement",
		Ref:   media.SourceRef{URL: "https://media.example/album", Section: "*0.00-62.50"},
	}
	_, err := newTestExtractor(runnerMock).Extract(context.Background(), track, t.TempDir())

	assert.Error(t, err)
	runnerMock.AssertExpectations(t)
}

func Test_Extract_PlainTrackOmitsSectionArguments(t *testing.T) {
	t.Parallel()
	runnerMock := new(mockRunner)
	runnerMock.On("Run", mock.Anything, "yt-dlp", mock.MatchedBy(func(args []string) bool {
		return !contains(args, "--download-sections") && contains(args, "https://media.example/a")
	})).Return("", errExpected)

	track := media.TrackDescriptor{Index: 1, Title: "Plain", Ref: media.SourceRef{URL: "https://media.example/a"}}
	_, err := newTestExtractor(runnerMock).Extract(context.Background(), track, t.TempDir())

	assert.Error(t, err)
	runnerMock.AssertExpectations(t)
}

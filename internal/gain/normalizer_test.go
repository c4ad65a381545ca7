package gain_test

import (
	"context"
	"errors"
	"testing"

	"github.com/fjmorton/trackforge/internal/gain"
	"github.com/fjmorton/trackforge/internal/media"
	"github.com/fjmorton/trackforge/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errExpected = errors.New("test: expected error")

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

type mockRunner struct {
	mock.Mock
}

func (runner *mockRunner) Run(ctx context.Context, binary string, args ...string) (string, error) {
	called := runner.Called(ctx, binary, args)
	return called.String(0), called.Error(1)
}

func Test_Normalize_AppliesTrackGainInPlace(t *testing.T) {
	t.Parallel()
	runnerMock := new(mockRunner)
	runnerMock.On("Run", mock.Anything, "mp3gain", []string{"-r", "-k", "/work/01 - Song.mp3"}).Return("", nil)

	normalizer := gain.NewNormalizer(gain.Config{BinaryPath: "mp3gain"}, runnerMock)
	artifact := &media.AudioArtifact{
		Track:  media.TrackDescriptor{Index: 1, Title: "Song"},
		Path:   "/work/01 - Song.mp3",
		Format: media.FormatMP3,
	}

	err := normalizer.Normalize(context.Background(), artifact)
	assert.Nil(t, err)
	assert.True(t, artifact.Normalized)
	assert.Equal(t, "/work/01 - Song.mp3", artifact.Path, "normalization must never relocate the artifact")
	runnerMock.AssertExpectations(t)
}

func Test_Normalize_ToolFailureReportsNormalizationError(t *testing.T) {
	t.Parallel()
	runnerMock := new(mockRunner)
	runnerMock.On("Run", mock.Anything, "mp3gain", mock.Anything).Return("", errExpected)

	normalizer := gain.NewNormalizer(gain.Config{BinaryPath: "mp3gain"}, runnerMock)
	artifact := &media.AudioArtifact{
		Track: media.TrackDescriptor{Index: 2, Title: "Broken"},
		Path:  "/work/02 - Broken.mp3",
	}

	err := normalizer.Normalize(context.Background(), artifact)
	require.Error(t, err)
	assert.False(t, artifact.Normalized)

	var normErr *gain.NormalizationError
	require.True(t, errors.As(err, &normErr))
	assert.Equal(t, artifact.Track, normErr.Track)
	assert.ErrorIs(t, err, errExpected)
}

func Test_Normalize_CancellationSurfacesContextError(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runnerMock := new(mockRunner)
	runnerMock.On("Run", mock.Anything, "mp3gain", mock.Anything).Return("", ctx.Err())

	normalizer := gain.NewNormalizer(gain.Config{BinaryPath: "mp3gain"}, runnerMock)
	err := normalizer.Normalize(ctx, &media.AudioArtifact{Track: media.TrackDescriptor{Index: 1}})

	assert.ErrorIs(t, err, context.Canceled)
}

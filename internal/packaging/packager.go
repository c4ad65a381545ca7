// Assembly of a pipeline runs normalized artifacts in to the final
// caller-facing output: a single audio file, or a zip archive bundling
// every track of a multi-track source.
package packaging

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fjmorton/trackforge/internal/media"
	"github.com/fjmorton/trackforge/pkg/logger"
)

var log = logger.Get("Packager")

type ResultKind int

const (
	Single ResultKind = iota
	Archive
)

func (kind ResultKind) String() string {
	if kind == Archive {
		return "archive"
	}

	return "single"
}

type (
	Config struct {
		OutputPath string
	}

	// Result is the final product of a pipeline run. Ownership of OutputPath
	// transfers to the caller; the pipeline never deletes it.
	Result struct {
		Kind       ResultKind
		OutputPath string
		TrackCount int
	}

	// PackagingError indicates the final output could not be assembled. It
	// always aborts the whole run.
	PackagingError struct {
		cause error
	}

	Packager struct {
		config Config
	}
)

func (e *PackagingError) Error() string {
	return fmt.Sprintf("failed to package output: %v", e.cause)
}

func (e *PackagingError) Unwrap() error { return e.cause }

func NewPackager(config Config) *Packager {
	return &Packager{config: config}
}

// Package produces the callers output from the runs normalized artifacts.
// A lone artifact is moved to the output directory as-is (Single); several
// artifacts are bundled in to a zip archive (Archive) whose entries are named
// from each tracks index and title, in source order. Archive creation is
// atomic from the callers point of view: the archive is staged under a
// partial name and only renamed in to place once fully written.
//
// Receiving zero artifacts is a contract violation by the orchestrator and
// is reported as a PackagingError defensively.
func (packager *Packager) Package(source *media.Source, artifacts []*media.AudioArtifact) (*Result, error) {
	if len(artifacts) == 0 {
		return nil, &PackagingError{cause: errors.New("no artifacts provided")}
	}

	if err := os.MkdirAll(packager.config.OutputPath, os.ModeDir|os.ModePerm); err != nil {
		return nil, &PackagingError{cause: err}
	}

	baseName := media.SanitizeTitle(source.Title)
	if len(artifacts) == 1 {
		return packager.packageSingle(artifacts[0], baseName)
	}

	return packager.packageArchive(artifacts, baseName)
}

func (packager *Packager) packageSingle(artifact *media.AudioArtifact, baseName string) (*Result, error) {
	outputPath := filepath.Join(packager.config.OutputPath, fmt.Sprintf("%s.%s", baseName, artifact.Format))
	if err := moveFile(artifact.Path, outputPath); err != nil {
		return nil, &PackagingError{cause: err}
	}

	log.Emit(logger.SUCCESS, "Packaged single track to %s\n", outputPath)
	return &Result{Kind: Single, OutputPath: outputPath, TrackCount: 1}, nil
}

func (packager *Packager) packageArchive(artifacts []*media.AudioArtifact, baseName string) (*Result, error) {
	outputPath := filepath.Join(packager.config.OutputPath, fmt.Sprintf("%s.zip", baseName))
	stagingPath := outputPath + ".partial"

	if err := writeArchive(stagingPath, artifacts); err != nil {
		// Either a complete archive exists, or none at all.
		os.Remove(stagingPath)
		return nil, &PackagingError{cause: err}
	}

	if err := os.Rename(stagingPath, outputPath); err != nil {
		os.Remove(stagingPath)
		return nil, &PackagingError{cause: err}
	}

	log.Emit(logger.SUCCESS, "Packaged %d tracks in to archive %s\n", len(artifacts), outputPath)
	return &Result{Kind: Archive, OutputPath: outputPath, TrackCount: len(artifacts)}, nil
}

func writeArchive(path string, artifacts []*media.AudioArtifact) error {
	archiveFile, err := os.Create(path)
	if err != nil {
		return err
	}
	defer archiveFile.Close()

	writer := zip.NewWriter(archiveFile)
	for _, artifact := range artifacts {
		entry, err := writer.Create(filepath.Base(artifact.Path))
		if err != nil {
			return err
		}

		source, err := os.Open(artifact.Path)
		if err != nil {
			return err
		}

		_, copyErr := io.Copy(entry, source)
		source.Close()
		if copyErr != nil {
			return copyErr
		}
	}

	return writer.Close()
}

// moveFile renames src to dst, falling back to a copy+remove when the two
// paths live on different filesystems.
func moveFile(src string, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		destFile.Close()
		os.Remove(dst)
		return err
	}

	if err := destFile.Close(); err != nil {
		os.Remove(dst)
		return err
	}

	return os.Remove(src)
}

package packaging

import (
	"fmt"

	"github.com/bogem/id3v2"
	"github.com/fjmorton/trackforge/internal/media"
)

// Tagger writes ID3 metadata on to normalized artifacts before they are
// packaged, so the delivered files carry their title, ordering and the
// collection they came from even outside the archives naming scheme.
type Tagger struct{}

func NewTagger() *Tagger { return &Tagger{} }

// TagArtifact sets the title (TIT2), album (TALB) and track number (TRCK)
// frames on the artifacts file. Existing frames for these fields are
// replaced; everything else in the tag is left untouched.
func (tagger *Tagger) TagArtifact(artifact *media.AudioArtifact, albumTitle string) error {
	tag, err := id3v2.Open(artifact.Path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open ID3 tag for %s: %w", artifact.Path, err)
	}
	defer tag.Close()

	tag.SetTitle(artifact.Track.Title)
	tag.SetAlbum(albumTitle)
	tag.AddTextFrame("TRCK", id3v2.EncodingUTF8, fmt.Sprintf("%d", artifact.Track.Index))

	if err := tag.Save(); err != nil {
		return fmt.Errorf("failed to save ID3 tag for %s: %w", artifact.Path, err)
	}

	return nil
}

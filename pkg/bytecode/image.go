package bytecode

import (
	"bytes"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// ImageVersion is the current image format version.
// Increment when making incompatible changes to the format.
const ImageVersion uint16 = 1

// ImageMagic identifies an m0 chunk image.
var ImageMagic = []byte{'M', '0', 'I', 'M'}

// Image is the on-disk form of an ordered set of chunks. Chunk order is
// load order.
type Image struct {
	Magic   []byte   `cbor:"1,keyasint"`
	Version uint16   `cbor:"2,keyasint"`
	Chunks  []*Chunk `cbor:"3,keyasint"`
}

// cborEncMode is the canonical CBOR encoding used for images and chunk
// blobs, so identical chunks always encode to identical bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// EncodeImage serializes chunks into an image.
func EncodeImage(chunks ...*Chunk) ([]byte, error) {
	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	return cborEncMode.Marshal(&Image{
		Magic:   ImageMagic,
		Version: ImageVersion,
		Chunks:  chunks,
	})
}

// DecodeImage deserializes an image and validates every chunk in it.
func DecodeImage(data []byte) ([]*Chunk, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal image: %w", err)
	}
	if !bytes.Equal(img.Magic, ImageMagic) {
		return nil, fmt.Errorf("invalid image magic: expected %q, got %q", ImageMagic, img.Magic)
	}
	if img.Version == 0 {
		return nil, fmt.Errorf("image has no version")
	}
	if img.Version > ImageVersion {
		return nil, fmt.Errorf("image version %d is newer than supported version %d", img.Version, ImageVersion)
	}
	for i, c := range img.Chunks {
		if c == nil {
			return nil, fmt.Errorf("image chunk %d is empty", i)
		}
		if c.Meta == nil {
			c.Meta = NewMetadata()
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	return img.Chunks, nil
}

// ReadImageFile loads all chunks from an image file.
func ReadImageFile(path string) ([]*Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	chunks, err := DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return chunks, nil
}

// WriteImageFile writes chunks to path as an image.
func WriteImageFile(path string, chunks ...*Chunk) error {
	data, err := EncodeImage(chunks...)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// MarshalChunk serializes a single chunk to CBOR bytes.
func MarshalChunk(c *Chunk) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(c)
}

// UnmarshalChunk deserializes a chunk from CBOR bytes.
func UnmarshalChunk(data []byte) (*Chunk, error) {
	var c Chunk
	if err := cbor.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal chunk: %w", err)
	}
	if c.Meta == nil {
		c.Meta = NewMetadata()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

package mediakind

import "bytes"

// ImageFormat identifies a sniffed image container.
type ImageFormat string

const (
	FormatJPEG    ImageFormat = "jpg"
	FormatPNG     ImageFormat = "png"
	FormatGIF     ImageFormat = "gif"
	FormatWebP    ImageFormat = "webp"
	FormatBMP     ImageFormat = "bmp"
	FormatUnknown ImageFormat = ""
)

// SniffHeaderSize is the number of leading bytes needed to classify
// any supported image container.
const SniffHeaderSize = 16

var (
	magicJPEG  = []byte{0xFF, 0xD8, 0xFF}
	magicPNG   = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	magicGIF87 = []byte("GIF87a")
	magicGIF89 = []byte("GIF89a")
	magicRIFF  = []byte("RIFF")
	magicWEBP  = []byte("WEBP")
	magicBMP   = []byte("BM")
)

// SniffImage classifies data by its magic bytes. It only inspects the
// header prefix; a positive result means the container is recognized,
// not that the full stream decodes.
func SniffImage(data []byte) (ImageFormat, bool) {
	switch {
	case bytes.HasPrefix(data, magicJPEG):
		return FormatJPEG, true
	case bytes.HasPrefix(data, magicPNG):
		return FormatPNG, true
	case bytes.HasPrefix(data, magicGIF87), bytes.HasPrefix(data, magicGIF89):
		return FormatGIF, true
	case len(data) >= 12 && bytes.HasPrefix(data, magicRIFF) && bytes.Equal(data[8:12], magicWEBP):
		return FormatWebP, true
	case bytes.HasPrefix(data, magicBMP):
		return FormatBMP, true
	}
	return FormatUnknown, false
}

// LooksLikeMP3 reports whether data starts with an ID3v2 tag or an
// MPEG audio frame sync word.
func LooksLikeMP3(data []byte) bool {
	if len(data) < 3 {
		return false
	}
	if bytes.HasPrefix(data, []byte("ID3")) {
		return true
	}
	// Frame sync: 11 set bits, then a valid MPEG version/layer nibble.
	if data[0] == 0xFF && data[1]&0xE0 == 0xE0 {
		version := (data[1] >> 3) & 0x03
		layer := (data[1] >> 1) & 0x03
		return version != 0x01 && layer != 0x00
	}
	return false
}

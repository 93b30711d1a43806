package artifact

import (
	"bytes"
	"io"
	"os"
)

// signatureLen is the number of leading bytes inspected.
const signatureLen = 4

var (
	zipSignature = []byte("PK\x03\x04")

	rasterSignatures = [][]byte{
		[]byte("II*\x00"), // TIFF, little endian
		[]byte("MM\x00*"), // TIFF, big endian
		[]byte("II+\x00"), // BigTIFF, little endian
		[]byte("MM\x00+"), // BigTIFF, big endian
	}
)

// payloadKind is the sniffed type of a staged payload.
type payloadKind int

const (
	payloadUnknown payloadKind = iota
	payloadRaster
	payloadArchive
)

func (k payloadKind) String() string {
	switch k {
	case payloadRaster:
		return "raster"
	case payloadArchive:
		return "archive"
	default:
		return "unknown"
	}
}

// sniff classifies a payload by its leading bytes.
func sniff(sig []byte) payloadKind {
	switch {
	case isRasterSignature(sig):
		return payloadRaster
	case bytes.HasPrefix(sig, zipSignature):
		return payloadArchive
	default:
		return payloadUnknown
	}
}

func isRasterSignature(sig []byte) bool {
	for _, s := range rasterSignatures {
		if bytes.HasPrefix(sig, s) {
			return true
		}
	}
	return false
}

// readSignature returns up to signatureLen leading bytes of a file.
func readSignature(path string) ([]byte, error) {
	f, err := os.Open(path) //#nosec G304 -- path is inside the output directory
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, signatureLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

// isValidRaster reports whether path is an existing file with a raster
// signature.
func isValidRaster(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	sig, err := readSignature(path)
	if err != nil {
		return false
	}
	return isRasterSignature(sig)
}

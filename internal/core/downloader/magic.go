package downloader

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DetectFileType reads the first bytes of the file to determine its type.
// Returns the suggested extension (without dot), or "" if unknown.
func DetectFileType(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	header := make([]byte, 12)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", err
	}
	return sniff(header[:n]), nil
}

func sniff(h []byte) string {
	n := len(h)
	if n < 3 {
		return ""
	}

	switch {
	// WebP: RIFF....WEBP
	case n >= 12 && string(h[0:4]) == "RIFF" && string(h[8:12]) == "WEBP":
		return "webp"
	case n >= 8 && bytes.Equal(h[0:8], []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return "png"
	case n >= 6 && (string(h[0:6]) == "GIF87a" || string(h[0:6]) == "GIF89a"):
		return "gif"
	case bytes.Equal(h[0:3], []byte{0xFF, 0xD8, 0xFF}):
		return "jpg"
	// ISO BMFF: ....ftyp<brand>
	case n >= 12 && string(h[4:8]) == "ftyp":
		switch string(h[8:12]) {
		case "M4A ", "M4B ":
			return "m4a"
		case "heic", "heix", "mif1":
			return "heic"
		}
		return "mp4"
	// EBML (Matroska, WebM). The doctype lives further in, so both sniff as mkv
	// unless the current name already says webm.
	case n >= 4 && bytes.Equal(h[0:4], []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return "mkv"
	case string(h[0:3]) == "ID3", h[0] == 0xFF && h[1]&0xE0 == 0xE0:
		return "mp3"
	}
	return ""
}

// equivalent reports whether two extensions name the same container
func equivalent(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return true
	}
	same := [][]string{{"jpg", "jpeg"}, {"mkv", "webm"}, {"mp4", "m4v", "mov"}}
	for _, group := range same {
		if contains(group, a) && contains(group, b) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// RenameByMagicBytes checks if the file's actual type differs from its extension
// and renames it if necessary. Returns the final path (renamed or original).
func RenameByMagicBytes(path string) string {
	detectedExt, err := DetectFileType(path)
	if err != nil || detectedExt == "" {
		return path
	}

	ext := filepath.Ext(path)
	currentExt := strings.TrimPrefix(ext, ".")
	if currentExt == "" || equivalent(currentExt, detectedExt) {
		return path
	}

	newPath := path[:len(path)-len(ext)] + "." + detectedExt
	if err := os.Rename(path, newPath); err != nil {
		return path
	}
	return newPath
}

package audio

import (
	"path/filepath"
	"strings"
)

var supportedFormats = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".m4a":  true,
	".ogg":  true,
	".flac": true,
	".webm": true,
	".aac":  true,
	".wma":  true,
}

// ValidFormat reports whether the filename extension is an accepted
// upload format. Everything accepted here is decodable by ffmpeg.
func ValidFormat(filename string) bool {
	return supportedFormats[strings.ToLower(filepath.Ext(filename))]
}

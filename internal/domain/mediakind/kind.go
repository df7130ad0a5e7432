// Package mediakind classifies generation output into a media kind.
// Classification is used in two places that must agree: choosing the
// stored file extension and gating FFmpeg post-processing, so this is
// the single place the heuristics live.
package mediakind

import (
	"regexp"
	"strings"
)

// Kind is the media category of a generation output.
type Kind int

const (
	KindUnknown Kind = iota
	KindVideo
	KindImage
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindImage:
		return "image"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Tool name substrings. Some names (qwen) appear in both lists; video
// wins because Classify checks it first, which matches how ambiguous
// tools behave in production.
var videoToolPatterns = []string{
	"text2video", "image2video", "wan", "animatediff", "haiper", "mochi",
	"minimax", "cogvideox", "ltx", "runway", "luma", "kling", "qwen", "video",
}

var imageToolPatterns = []string{
	"flux", "bria", "hidream", "stable-diffusion", "sdxl", "image",
	"txt2img", "gemini", "qwen", "img2img",
}

var audioToolPatterns = []string{
	"music", "audio", "cassetteai", "tts", "speech", "sound",
}

var (
	videoURLPattern = regexp.MustCompile(`\.(mp4|webm|mov|avi|mkv)$`)
	imageURLPattern = regexp.MustCompile(`\.(jpg|jpeg|png|gif|bmp|webp)$`)
	audioURLPattern = regexp.MustCompile(`\.(mp3|wav|ogg|flac|m4a)$`)
)

// Classify determines the media kind from the tool name and, when
// available, the output URL's extension. Video is checked before
// image, image before audio.
func Classify(toolType, outputURL string) Kind {
	tool := strings.ToLower(toolType)
	url := strings.ToLower(outputURL)

	if matchesAny(tool, videoToolPatterns) || videoURLPattern.MatchString(url) {
		return KindVideo
	}
	if matchesAny(tool, imageToolPatterns) || imageURLPattern.MatchString(url) {
		return KindImage
	}
	if matchesAny(tool, audioToolPatterns) || audioURLPattern.MatchString(url) {
		return KindAudio
	}
	return KindUnknown
}

func matchesAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

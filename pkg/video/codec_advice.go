package video

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// CodecType represents the family of a video codec
type CodecType int

const (
	CodecTypeMPEG1 CodecType = iota
	CodecTypeMPEG2
	CodecTypeMPEG4
	CodecTypeH264
	CodecTypeHEVC
	CodecTypeVP8
	CodecTypeVP9
	CodecTypeAV1
	CodecTypeUnknown
)

// CodecInfo describes the decoder opened for a stream.
type CodecInfo struct {
	Name            string // decoder name, e.g. "h264" or "h264_vaapi"
	Path            string
	Width           int
	Height          int
	FrameRate       float64
	IsHardwareAccel bool
}

// CodecAdvice is the outcome of AnalyzeCodec.
type CodecAdvice struct {
	CurrentType       CodecType
	IsOptimal         bool
	RecommendedType   CodecType
	Reason            string
	ReencodingCommand string
}

// hardwareSuffixes mark decoders that offload to a hardware block.
var hardwareSuffixes = []string{"_rkmpp", "_vaapi", "_nvdec", "_cuvid", "_v4l2m2m", "_videotoolbox", "_qsv"}

// IsHardwareDecoder reports whether a decoder name names a hardware decoder.
func IsHardwareDecoder(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range hardwareSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// DetectCodecType determines the codec family from a codec or decoder name
func DetectCodecType(codecName string) CodecType {
	lower := strings.ToLower(codecName)

	switch {
	case strings.Contains(lower, "h264"), strings.Contains(lower, "avc"):
		return CodecTypeH264
	case strings.Contains(lower, "h265"), strings.Contains(lower, "hevc"):
		return CodecTypeHEVC
	case strings.Contains(lower, "mpeg1"):
		return CodecTypeMPEG1
	case strings.Contains(lower, "mpeg2"):
		return CodecTypeMPEG2
	case strings.Contains(lower, "mpeg4"):
		return CodecTypeMPEG4
	case strings.Contains(lower, "vp8"):
		return CodecTypeVP8
	case strings.Contains(lower, "vp9"):
		return CodecTypeVP9
	case strings.Contains(lower, "av1"):
		return CodecTypeAV1
	default:
		return CodecTypeUnknown
	}
}

func (c CodecType) String() string {
	switch c {
	case CodecTypeMPEG1:
		return "MPEG-1"
	case CodecTypeMPEG2:
		return "MPEG-2"
	case CodecTypeMPEG4:
		return "MPEG-4"
	case CodecTypeH264:
		return "H.264/AVC"
	case CodecTypeHEVC:
		return "H.265/HEVC"
	case CodecTypeVP8:
		return "VP8"
	case CodecTypeVP9:
		return "VP9"
	case CodecTypeAV1:
		return "AV1"
	default:
		return "Unknown"
	}
}

// AnalyzeCodec judges whether a stream is cheap to decode continuously on a
// wallpaper host and suggests a re-encode when it is not.
func AnalyzeCodec(info CodecInfo) CodecAdvice {
	advice := CodecAdvice{
		CurrentType:     DetectCodecType(info.Name),
		RecommendedType: CodecTypeH264,
	}

	switch advice.CurrentType {
	case CodecTypeH264, CodecTypeHEVC:
		if info.IsHardwareAccel {
			advice.IsOptimal = true
			advice.RecommendedType = advice.CurrentType
			advice.Reason = "hardware accelerated decode"
			break
		}
		advice.Reason = "software decode; no hardware decoder could be opened"
		if advice.CurrentType == CodecTypeH264 && info.Height <= 1080 {
			advice.IsOptimal = true
			advice.Reason = "software H.264 at or below 1080p"
		}

	case CodecTypeVP8, CodecTypeVP9:
		advice.IsOptimal = info.IsHardwareAccel
		advice.Reason = "VP8/VP9 has limited hardware support"

	case CodecTypeMPEG1, CodecTypeMPEG2, CodecTypeMPEG4:
		advice.Reason = "legacy codec with poor compression and no hardware decode"

	case CodecTypeAV1:
		advice.IsOptimal = info.IsHardwareAccel
		advice.Reason = "AV1 software decode is very CPU-intensive"

	default:
		advice.Reason = "unknown codec"
	}

	if !advice.IsOptimal {
		advice.ReencodingCommand = reencodingCommand(info)
	}
	return advice
}

// reencodingCommand creates an ffmpeg command re-encoding to H.264 without
// audio, capped at 1080p.
func reencodingCommand(info CodecInfo) string {
	in := info.Path
	if in == "" {
		in = "input.mp4"
	}
	out := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in)) + "_h264.mp4"

	scaleFilter := ""
	if info.Height > 1080 {
		scaleFilter = "-vf scale=-2:1080 "
	}
	return fmt.Sprintf("ffmpeg -i %q -c:v libx264 -profile:v main -preset slow -crf 23 %s-an %q", in, scaleFilter, out)
}

// LogCodecAdvice analyses info and logs the verdict.
func LogCodecAdvice(info CodecInfo) CodecAdvice {
	advice := AnalyzeCodec(info)
	entry := logrus.WithFields(logrus.Fields{
		"component": "codec",
		"decoder":   info.Name,
		"codec":     advice.CurrentType.String(),
		"size":      fmt.Sprintf("%dx%d", info.Width, info.Height),
		"fps":       info.FrameRate,
		"hardware":  info.IsHardwareAccel,
		"reason":    advice.Reason,
	})
	if advice.IsOptimal {
		entry.Info("Codec is suitable for continuous playback")
		return advice
	}
	entry.WithField("reencode", advice.ReencodingCommand).Warn("Codec is expensive to decode, consider re-encoding")
	return advice
}

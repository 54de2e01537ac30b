package mpeg

import "github.com/sirupsen/logrus"

// DecoderSelection steers which libavcodec decoder is opened for a stream.
type DecoderSelection struct {
	// Preferred is tried first when it decodes the stream's codec.
	Preferred string
	// ForceSoftware skips hardware decoders entirely.
	ForceSoftware bool
}

// hardwareDecoders lists hardware decoders by codec name and platform, in
// priority order. V4L2 mem2mem decoders for H.264, HEVC and MPEG-2 are left
// out because they fail on Raspberry Pi 4 kernels.
var hardwareDecoders = map[string]map[string][]string{
	"hevc": {
		"linux":  {"hevc_rkmpp", "hevc_vaapi", "hevc_nvdec"},
		"darwin": {"hevc_videotoolbox"},
	},
	"h264": {
		"linux":  {"h264_rkmpp", "h264_vaapi", "h264_nvdec", "h264_cuvid"},
		"darwin": {"h264_videotoolbox"},
	},
	"vp9": {
		"linux": {"vp9_v4l2m2m", "vp9_vaapi"},
	},
	"vp8": {
		"linux": {"vp8_v4l2m2m", "vp8_vaapi"},
	},
	"av1": {
		"linux": {"av1_v4l2m2m", "av1_vaapi"},
	},
	"mpeg2video": {
		"linux": {"mpeg2_vaapi"},
	},
	"mpeg4": {
		"linux": {"mpeg4_v4l2m2m", "mpeg4_vaapi"},
	},
}

// softwareDecoders names the software decoder tried after hardware ones.
var softwareDecoders = map[string][]string{
	"hevc":       {"hevc"},
	"h264":       {"h264"},
	"vp9":        {"vp9"},
	"vp8":        {"vp8"},
	"av1":        {"av1"},
	"mpeg2video": {"mpeg2video"},
	"mpeg4":      {"mpeg4"},
}

// candidateDecoders returns decoder names to try, in order, for a stream of
// codecName on goos. An empty list means only the default decoder for the
// codec ID is tried.
func candidateDecoders(codecName, goos string, sel DecoderSelection) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(names ...string) {
		for _, n := range names {
			if n != "" && !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}

	if sel.ForceSoftware {
		logrus.WithField("component", "decoder").Info("Software decoding forced, skipping hardware decoders")
	} else {
		add(sel.Preferred)
		add(hardwareDecoders[codecName][goos]...)
	}
	add(softwareDecoders[codecName]...)
	return out
}

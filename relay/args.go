package relay

import (
	"strconv"
	"strings"
)

// Encoding holds the fixed, low-latency ffmpeg parameters applied to every session.
type Encoding struct {
	Preset       string
	Tune         string
	VideoBitrate string
	MaxRate      string
	BufSize      string
	GOP          int
	FrameRate    int
	AudioBitrate string
	SampleRate   int
	Container    string
}

// DefaultEncoding matches what the browser client expects: 1 Mbps H.264 at 30 fps with a
// one-second keyframe interval and 128k AAC.
func DefaultEncoding() Encoding {
	return Encoding{
		Preset:       "veryfast",
		Tune:         "zerolatency",
		VideoBitrate: "1000k",
		MaxRate:      "1000k",
		BufSize:      "2000k",
		GOP:          30,
		FrameRate:    30,
		AudioBitrate: "128k",
		SampleRate:   44100,
		Container:    "flv",
	}
}

// BuildArgs returns ffmpeg arguments that read the container stream from stdin and write the
// same encoded output to every destination through the tee muxer. Each slave is marked
// onfail=ignore so one unreachable endpoint does not stop delivery to the others.
func BuildArgs(dst Destinations, enc Encoding) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-re",
		"-i", "pipe:0",
		"-map", "0:v",
		"-map", "0:a",
		"-c:v", "libx264",
		"-preset", enc.Preset,
		"-tune", enc.Tune,
		"-b:v", enc.VideoBitrate,
		"-maxrate", enc.MaxRate,
		"-bufsize", enc.BufSize,
		"-g", strconv.Itoa(enc.GOP),
		"-r", strconv.Itoa(enc.FrameRate),
		"-c:a", "aac",
		"-b:a", enc.AudioBitrate,
		"-ar", strconv.Itoa(enc.SampleRate),
		"-f", "tee",
	}
	return append(args, teeTarget(dst, enc.Container))
}

func teeTarget(dst Destinations, container string) string {
	slaves := make([]string, 0, dst.Len())
	for _, u := range dst.Strings() {
		slaves = append(slaves, "[f="+container+":onfail=ignore]"+u)
	}
	return strings.Join(slaves, "|")
}

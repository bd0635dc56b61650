// Package progress extracts structured readings from the diagnostic
// lines yt-dlp prints while downloading.
//
// Every field is matched on its own, so the order of tokens in a line does
// not matter and a line carrying only some of them still yields a partial
// reading.
package progress

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/space-downloader/spacedl/internal/model"
)

const (
	number = `(\d+(?:\.\d+)?)`
	unit   = `(?i:(KiB|MiB|GiB|TiB|kB|MB|GB|TB|Bytes|B))`
)

var (
	percentRx    = regexp.MustCompile(`(?:^|\s)(\d{1,3}(?:\.\d+)?)%`)
	totalRx      = regexp.MustCompile(`\bof\s+~?\s*` + number + `\s*` + unit + `?`)
	downloadedRx = regexp.MustCompile(`\[download\]\s+~?\s*` + number + `\s*` + unit + `(?:\s|$)`)
	speedRx      = regexp.MustCompile(number + `\s*` + unit + `?/s\b`)
	etaRx        = regexp.MustCompile(`\bETA\s+(\d+(?::\d+)*)`)

	destinationRx = regexp.MustCompile(`Destination:\s+(.+)$`)
	alreadyRx     = regexp.MustCompile(`^\[download\]\s+(.+?) has already been downloaded`)
)

// Parse returns the fields recognized in line. ok is false when none was.
// Destination lines never carry a reading, whatever the file name holds.
func Parse(line string) (p model.Progress, ok bool) {
	if destinationRx.MatchString(line) || alreadyRx.MatchString(line) {
		return p, false
	}
	if m := percentRx.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v <= 100 {
			p.Percent = &v
		}
	}
	if m := totalRx.FindStringSubmatch(line); m != nil {
		p.TotalBytes = toBytes(m[1], m[2])
	}
	if m := downloadedRx.FindStringSubmatch(line); m != nil {
		p.DownloadedBytes = toBytes(m[1], m[2])
	}
	if m := speedRx.FindStringSubmatch(line); m != nil {
		p.SpeedBytesPerSec = toBytes(m[1], m[2])
	}
	if m := etaRx.FindStringSubmatch(line); m != nil {
		p.ETA = toETA(m[1])
	}

	if p.DownloadedBytes == nil && p.Percent != nil && p.TotalBytes != nil {
		done := uint64(*p.Percent / 100 * float64(*p.TotalBytes))
		p.DownloadedBytes = &done
	}
	return p, !p.Empty()
}

// Destination returns the output path announced by a line such as
// "[download] Destination: /music/Title.webm".
func Destination(line string) (string, bool) {
	line = strings.TrimRight(line, "\r\n")
	m := destinationRx.FindStringSubmatch(line)
	if m == nil {
		m = alreadyRx.FindStringSubmatch(line)
	}
	if m == nil {
		return "", false
	}
	path := strings.TrimSpace(m[1])
	return path, path != ""
}

// Multiplier returns the byte count of one u. Binary units use powers of
// 1024, decimal ones powers of 1000. An empty or unknown unit counts as
// bytes.
func Multiplier(u string) float64 {
	u = strings.ToLower(u)
	var power float64
	switch {
	case strings.HasPrefix(u, "k"):
		power = 1
	case strings.HasPrefix(u, "m"):
		power = 2
	case strings.HasPrefix(u, "g"):
		power = 3
	case strings.HasPrefix(u, "t"):
		power = 4
	default:
		return 1
	}
	base := 1000.0
	if strings.HasSuffix(u, "ib") {
		base = 1024
	}
	return math.Pow(base, power)
}

func toBytes(value, u string) *uint64 {
	n, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	v := n * Multiplier(u)
	if v >= math.MaxUint64 {
		return nil
	}
	b := uint64(v)
	return &b
}

func toETA(s string) *time.Duration {
	var secs int64
	for part := range strings.SplitSeq(s, ":") {
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil || secs > (math.MaxInt64/int64(time.Second)-n)/60 {
			return nil
		}
		secs = secs*60 + n
	}
	d := time.Duration(secs) * time.Second
	return &d
}

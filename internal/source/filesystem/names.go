package filesystem

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	// "Title (1999)" or "Title [1999]", anything after the year is ignored.
	titleYearRx = regexp.MustCompile(`^(.+?)\s*[\(\[]((?:19|20)\d{2})[\)\]]`)
	bracketRx   = regexp.MustCompile(`[\[\{][^\]\}]*[\]\}]`)
	yearWordRx  = regexp.MustCompile(`^[\(\[]?((?:19|20)\d{2})[\)\]]?$`)
)

// releaseTokens end the title part of a scene-style release name.
var releaseTokens = map[string]bool{
	"2160p": true, "1080p": true, "1080i": true, "720p": true, "576p": true, "480p": true, "4k": true, "uhd": true,
	"bluray": true, "blu-ray": true, "bdrip": true, "brrip": true, "remux": true, "web": true, "web-dl": true,
	"webdl": true, "webrip": true, "hdtv": true, "dvdrip": true, "dvd": true, "hdrip": true,
	"x264": true, "x265": true, "h264": true, "h265": true, "hevc": true, "avc": true, "xvid": true, "divx": true,
	"10bit": true, "hdr": true, "hdr10": true, "dv": true, "sdr": true,
	"aac": true, "ac3": true, "dts": true, "dts-hd": true, "truehd": true, "atmos": true, "ddp5": true, "dd5": true,
	"extended": true, "unrated": true, "remastered": true, "proper": true, "repack": true, "limited": true,
	"multi": true, "dual": true, "subbed": true, "internal": true,
}

// ParseName extracts a title and optional release year from a file or
// directory name. Extensions of media files are stripped first.
func ParseName(name string) (string, *int) {
	name = strings.TrimSpace(name)
	if ext := filepath.Ext(name); mediaExt(ext) {
		name = strings.TrimSuffix(name, ext)
	}

	if m := titleYearRx.FindStringSubmatch(name); m != nil {
		if title := cleanTitle(m[1]); title != "" {
			y, _ := strconv.Atoi(m[2])
			return title, &y
		}
	}

	name = bracketRx.ReplaceAllString(name, " ")
	words := strings.Fields(strings.NewReplacer(".", " ", "_", " ").Replace(name))

	n := 0
	for _, w := range words {
		if releaseTokens[strings.ToLower(strings.Trim(w, "()-"))] {
			break
		}
		n++
	}
	words = words[:n]

	// The last year-looking word wins so "Blade Runner 2049 2017" keeps 2049
	// in the title. A leading year is always part of the title.
	for i := len(words) - 1; i > 0; i-- {
		if m := yearWordRx.FindStringSubmatch(words[i]); m != nil {
			y, _ := strconv.Atoi(m[1])
			return cleanTitle(strings.Join(words[:i], " ")), &y
		}
	}
	return cleanTitle(strings.Join(words, " ")), nil
}

func cleanTitle(s string) string {
	s = strings.NewReplacer(".", " ", "_", " ").Replace(s)
	return strings.Trim(strings.Join(strings.Fields(s), " "), " -")
}

func mediaExt(ext string) bool {
	switch strings.ToLower(ext) {
	case ".mkv", ".mp4", ".avi", ".m4v", ".mov", ".wmv", ".ts", ".iso", ".mpg", ".mpeg", ".webm":
		return true
	}
	return false
}

package common

import (
	"errors"
	"path"
	"regexp"
	"strings"
)

var (
	ErrEmptyFileName = errors.New("file name cannot be empty")
	unsafeNameChars  = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)
)

const maxFileNameLen = 120

// SafeFileName turns a user-supplied attachment name into one that is safe to
// use as an upload file name and inside markdown links. Letters of any script
// survive; separators and markup characters collapse to "_". The fallback is
// used when nothing usable remains.
func SafeFileName(input, fallback string) (string, error) {
	name := sanitize(input)
	if name == "" {
		name = sanitize(fallback)
	}
	if name == "" {
		return "", ErrEmptyFileName
	}
	return name, nil
}

func sanitize(s string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(s), "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	name := strings.Trim(unsafeNameChars.ReplaceAllString(base, "_"), "_.")
	if len(name) <= maxFileNameLen {
		return name
	}

	ext := path.Ext(name)
	if len(ext) > 16 {
		ext = ""
	}
	cut := []rune(strings.TrimSuffix(name, ext))
	for len(string(cut))+len(ext) > maxFileNameLen {
		cut = cut[:len(cut)-1]
	}
	return string(cut) + ext
}

package chunker

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Config controls chunking behavior. Sizes are measured in characters (runes).
type Config struct {
	ChunkSize    int // Target chunk size.
	ChunkOverlap int // Characters of the previous chunk repeated at the start of the next.
}

// MinChunkSize is the floor applied to ChunkSize.
const MinChunkSize = 200

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    1200,
		ChunkOverlap: 200,
	}
}

// ErrEmptyInput is matched by every EmptyInputError.
var ErrEmptyInput = errors.New("no text to chunk")

// EmptyInputError reports text that is empty or whitespace only.
type EmptyInputError struct{}

func (e *EmptyInputError) Error() string        { return ErrEmptyInput.Error() }
func (e *EmptyInputError) Is(target error) bool { return target == ErrEmptyInput }

var (
	excessNewlines = regexp.MustCompile(`\n{3,}`)
	paragraphBreak = regexp.MustCompile(`\n\n+`)
)

// normalized returns cfg with the size floored and the overlap kept below the size.
func (cfg Config) normalized() Config {
	if cfg.ChunkSize < MinChunkSize {
		cfg.ChunkSize = MinChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 5
	}
	return cfg
}

// Split breaks text into ordered chunks of roughly cfg.ChunkSize characters.
// Paragraphs are packed together first; a paragraph that is too long is split
// on line boundaries, and a line that is still too long is cut by characters,
// so no content is dropped. Every chunk after the first starts with the last
// cfg.ChunkOverlap characters of the chunk before it.
func Split(text string, cfg Config) ([]string, error) {
	cfg = cfg.normalized()

	t := strings.ReplaceAll(text, "\r\n", "\n")
	t = strings.ReplaceAll(t, "\r", "\n")
	t = strings.TrimSpace(excessNewlines.ReplaceAllString(t, "\n\n"))
	if t == "" {
		return nil, &EmptyInputError{}
	}

	base := packParagraphs(paragraphBreak.Split(t, -1), cfg.ChunkSize)
	if cfg.ChunkOverlap == 0 {
		return base, nil
	}

	out := make([]string, 0, len(base))
	for i, c := range base {
		if i == 0 {
			out = append(out, c)
			continue
		}
		prefix := tail(base[i-1], cfg.ChunkOverlap)
		out = append(out, strings.TrimSpace(prefix+"\n"+c))
	}
	return out, nil
}

func packParagraphs(paragraphs []string, size int) []string {
	var chunks []string
	var cur string

	flush := func() {
		if s := strings.TrimSpace(cur); s != "" {
			chunks = append(chunks, s)
		}
		cur = ""
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if runeLen(cur)+runeLen(p)+2 <= size {
			if cur == "" {
				cur = p
			} else {
				cur += "\n\n" + p
			}
			continue
		}

		flush()
		if runeLen(p) <= size {
			cur = p
			continue
		}
		chunks = append(chunks, packLines(p, size)...)
	}
	flush()
	return chunks
}

func packLines(paragraph string, size int) []string {
	var chunks []string
	var buf string
	for _, ln := range strings.Split(paragraph, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			continue
		}
		if runeLen(ln) > size {
			if buf != "" {
				chunks = append(chunks, buf)
				buf = ""
			}
			chunks = append(chunks, hardSplit(ln, size)...)
			continue
		}
		if buf != "" && runeLen(buf)+runeLen(ln)+1 > size {
			chunks = append(chunks, buf)
			buf = ""
		}
		if buf == "" {
			buf = ln
		} else {
			buf += "\n" + ln
		}
	}
	if buf != "" {
		chunks = append(chunks, buf)
	}
	return chunks
}

func hardSplit(line string, size int) []string {
	runes := []rune(line)
	var parts []string
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

func tail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

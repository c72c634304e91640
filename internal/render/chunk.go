package render

import (
	"strings"
	"unicode/utf8"
)

// Venue message length limits, in characters.
const (
	HardLimit = 2000
	SoftLimit = 1500
)

// Chunk splits text into messages no longer than HardLimit. Text within the
// limit is returned whole. Longer text is packed line by line into chunks
// of at most SoftLimit; lines longer than that are packed word by word and
// words longer than that are cut at fixed offsets. Blank chunks are dropped.
func Chunk(text string) []string {
	return ChunkWith(text, HardLimit, SoftLimit)
}

// ChunkWith is Chunk with explicit limits.
func ChunkWith(text string, hard, soft int) []string {
	if utf8.RuneCountInString(text) <= hard {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}
	if soft <= 0 || soft > hard {
		soft = hard
	}

	p := &packer{limit: soft}
	for i, line := range strings.Split(text, "\n") {
		sep := "\n"
		if i == 0 {
			sep = ""
		}
		if utf8.RuneCountInString(line) <= soft {
			p.add(line, sep)
			continue
		}
		for j, word := range strings.Split(line, " ") {
			if j > 0 {
				sep = " "
			}
			for k, frag := range splitRunes(word, soft) {
				if k > 0 {
					sep = ""
				}
				p.add(frag, sep)
			}
		}
	}
	p.flush()
	return p.chunks
}

type packer struct {
	limit  int
	chunks []string
	cur    strings.Builder
	curLen int
}

// add appends piece preceded by sep, starting a new chunk when it would not fit.
// Separators are dropped at chunk boundaries.
func (p *packer) add(piece, sep string) {
	n := utf8.RuneCountInString(piece)
	if p.curLen > 0 && p.curLen+utf8.RuneCountInString(sep)+n > p.limit {
		p.flush()
	}
	if p.curLen > 0 {
		p.cur.WriteString(sep)
		p.curLen += utf8.RuneCountInString(sep)
	}
	p.cur.WriteString(piece)
	p.curLen += n
}

func (p *packer) flush() {
	if s := p.cur.String(); strings.TrimSpace(s) != "" {
		p.chunks = append(p.chunks, s)
	}
	p.cur.Reset()
	p.curLen = 0
}

// splitRunes cuts s into pieces of at most n runes. It always returns at
// least one piece.
func splitRunes(s string, n int) []string {
	if utf8.RuneCountInString(s) <= n {
		return []string{s}
	}
	var out []string
	r := []rune(s)
	for len(r) > n {
		out = append(out, string(r[:n]))
		r = r[n:]
	}
	if len(r) > 0 {
		out = append(out, string(r))
	}
	return out
}

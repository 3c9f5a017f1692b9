// Package chunker splits page content into size-bounded, overlapping chunks
// suitable for embedding. The source implementation delegates this to an
// external helper not carried in the kept sources, so the parameters here
// (chunk size, overlap, paragraph-first splitting) are a deliberate,
// documented choice rather than a port of existing behavior.
package chunker

import "strings"

// Default tuning: generous enough to give an embedding model real context
// per chunk at the conservative chars/4 token estimate, small enough that a
// page produces a useful number of independently rankable chunks.
const (
	DefaultChunkSize = 1200
	DefaultOverlap   = 200
)

// Split breaks text into chunks of at most size runes, overlapping
// consecutive chunks by up to overlap runes: the tail carried over from the
// previous chunk is shortened when the chunk has less room than that, so
// the size bound always holds. It prefers to cut on paragraph
// boundaries (blank lines) and falls back to a hard cut when a single
// paragraph exceeds size. Calling Split twice on identical input yields
// byte-identical output: there is no randomness or wall-clock dependency
// anywhere in the algorithm.
func Split(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultOverlap
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	paragraphs := splitParagraphs(text)
	var chunks []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		chunks = append(chunks, strings.TrimSpace(cur.String()))
		cur.Reset()
	}

	for _, p := range paragraphs {
		if runeLen(p) > size {
			flush()
			chunks = append(chunks, hardSplit(p, size, overlap)...)
			continue
		}
		if cur.Len() > 0 && runeLen(cur.String())+2+runeLen(p) > size {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
	}
	flush()

	return withOverlap(chunks, size, overlap)
}

func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{text}
	}
	return out
}

func hardSplit(text string, size, overlap int) []string {
	runes := []rune(text)
	var out []string
	step := size - overlap
	if step <= 0 {
		step = size
	}
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, strings.TrimSpace(string(runes[start:end])))
		if end == len(runes) {
			break
		}
	}
	return out
}

func withOverlap(chunks []string, size, overlap int) []string {
	if overlap <= 0 || len(chunks) < 2 {
		return chunks
	}
	out := make([]string, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		tailLen := overlap
		if tailLen > len(prev) {
			tailLen = len(prev)
		}
		// The tail plus its joining space must fit within size.
		if room := size - runeLen(chunks[i]) - 1; tailLen > room {
			tailLen = room
		}
		if tailLen <= 0 {
			out[i] = chunks[i]
			continue
		}
		tail := string(prev[len(prev)-tailLen:])
		out[i] = strings.TrimSpace(tail + " " + chunks[i])
	}
	return out
}

func runeLen(s string) int {
	return len([]rune(s))
}

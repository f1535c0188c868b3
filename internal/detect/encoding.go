package detect

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

const (
	EncodingUTF8    = "utf-8"
	EncodingUTF16LE = "utf-16le"
	EncodingUTF16BE = "utf-16be"
	EncodingCP1251  = "windows-1251"
	EncodingKOI8R   = "koi8-r"
	EncodingCP866   = "ibm866"
)

var legacyCyrillic = []struct {
	name string
	enc  encoding.Encoding
}{
	{EncodingCP1251, charmap.Windows1251},
	{EncodingKOI8R, charmap.KOI8R},
	{EncodingCP866, charmap.CodePage866},
}

// frequent Russian letters; a correct decode is dominated by them.
const commonCyrillic = "оеаинтсрвлкмдпуяыьгзбчйхжшюцщэфъё"

// DetectEncoding guesses the text encoding of buf. Valid UTF-8 wins; otherwise
// the legacy Cyrillic code page whose decode looks most like Russian text is
// returned.
func DetectEncoding(buf []byte) string {
	switch {
	case bytes.HasPrefix(buf, utf8BOM):
		return EncodingUTF8
	case bytes.HasPrefix(buf, []byte{0xFF, 0xFE}):
		return EncodingUTF16LE
	case bytes.HasPrefix(buf, []byte{0xFE, 0xFF}):
		return EncodingUTF16BE
	}
	sample := head(buf, 16*1024)
	if utf8.Valid(trimPartialRune(sample)) {
		return EncodingUTF8
	}

	best, bestScore := "", 0
	scores := map[string]int{}
	for _, cand := range legacyCyrillic {
		decoded, err := cand.enc.NewDecoder().Bytes(sample)
		if err != nil {
			continue
		}
		score := cyrillicScore(string(decoded))
		scores[cand.name] = score
		if score > bestScore {
			best, bestScore = cand.name, score
		}
	}
	if best == "" {
		return EncodingCP1251
	}

	// chardet breaks near ties between code pages.
	if r, err := chardet.NewTextDetector().DetectBest(sample); err == nil && r != nil {
		hint := strings.ToLower(r.Charset)
		if s, ok := scores[hint]; ok && s*10 >= bestScore*9 {
			return hint
		}
	}
	return best
}

func cyrillicScore(s string) int {
	score := 0
	for _, r := range s {
		switch {
		case strings.ContainsRune(commonCyrillic, r):
			score += 2
		case r >= 'А' && r <= 'Я':
			score++
		case r >= 0x2500 && r <= 0x25FF, r >= 0x80 && r < 0xA0:
			score -= 2
		}
	}
	return score
}

// Decode converts buf from the named encoding to a Go string. Unknown names
// and decode errors fall back to the raw bytes.
func Decode(buf []byte, enc string) string {
	buf = bytes.TrimPrefix(buf, utf8BOM)
	var decoder *encoding.Decoder
	switch strings.ToLower(enc) {
	case EncodingCP1251, "cp1251":
		decoder = charmap.Windows1251.NewDecoder()
	case EncodingKOI8R:
		decoder = charmap.KOI8R.NewDecoder()
	case EncodingCP866, "cp866":
		decoder = charmap.CodePage866.NewDecoder()
	case EncodingUTF16LE:
		decoder = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
	case EncodingUTF16BE:
		decoder = unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()
	default:
		return string(buf)
	}
	out, err := decoder.Bytes(buf)
	if err != nil {
		return string(buf)
	}
	return string(out)
}

func trimPartialRune(b []byte) []byte {
	for i := 0; i < utf8.UTFMax && len(b) > 0; i++ {
		r, size := utf8.DecodeLastRune(b)
		if r != utf8.RuneError || size != 1 {
			return b
		}
		b = b[:len(b)-1]
	}
	return b
}

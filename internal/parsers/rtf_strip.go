package parsers

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

var rtfSkipDestinations = map[string]bool{
	"fonttbl": true, "colortbl": true, "stylesheet": true, "info": true, "pict": true,
	"object": true, "listtable": true, "listoverridetable": true, "rsidtbl": true,
	"generator": true, "themedata": true, "colorschememapping": true, "datastore": true,
	"latentstyles": true, "xmlnstbl": true, "filetbl": true, "revtbl": true, "fldinst": true,
	"bkmkstart": true, "bkmkend": true, "mmathPr": true,
}

var rtfSymbols = map[string]string{
	"par": "\n", "line": "\n", "row": "\n", "sect": "\n", "page": "\n",
	"tab": "\t", "cell": " | ",
	"emdash": "—", "endash": "–", "bullet": "•",
	"lquote": "'", "rquote": "'", "ldblquote": `"`, "rdblquote": `"`,
}

var ErrNotRTF = errors.New("input is not rtf")

type rtfGroup struct {
	skip bool
	uc   int
}

type rtfStripper struct {
	src       []byte
	out       strings.Builder
	pending   []byte
	codepage  encoding.Encoding
	utf8Lit   bool
	cur       rtfGroup
	stack     []rtfGroup
	skipChars int
	atGroup   bool
}

// StripRTF removes RTF control words and groups and returns the plain text.
// Hex escapes are decoded with the document's \ansicpg code page
// (windows-1251 when absent); literal UTF-8 text is passed through.
func StripRTF(src []byte) (string, error) {
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(src, utf8BOM), " \t\r\n")
	if !bytes.HasPrefix(trimmed, []byte(`{\rtf`)) {
		return "", ErrNotRTF
	}
	s := &rtfStripper{
		src:      trimmed,
		codepage: charmap.Windows1251,
		utf8Lit:  utf8.Valid(trimmed),
		cur:      rtfGroup{uc: 1},
	}
	s.run()

	lines := strings.Split(s.out.String(), "\n")
	kept := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		return "", errors.New("rtf contains no text")
	}
	return strings.Join(kept, "\n"), nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func (s *rtfStripper) run() {
	src := s.src
	for i := 0; i < len(src); {
		c := src[i]
		switch c {
		case '{':
			s.flush()
			s.stack = append(s.stack, s.cur)
			s.atGroup = true
			i++
			continue
		case '}':
			s.flush()
			if len(s.stack) == 0 {
				return
			}
			s.cur = s.stack[len(s.stack)-1]
			s.stack = s.stack[:len(s.stack)-1]
			s.atGroup = false
			i++
			continue
		case '\\':
			i = s.control(i + 1)
			continue
		case '\r', '\n':
			i++
			continue
		}
		s.atGroup = false
		if c < utf8.RuneSelf || !s.utf8Lit {
			s.literalByte(c)
			i++
			continue
		}
		r, size := utf8.DecodeRune(src[i:])
		if s.consumeFallback() || s.cur.skip {
			i += size
			continue
		}
		s.flush()
		s.out.WriteRune(r)
		i += size
	}
	s.flush()
}

// control handles the token after a backslash at src[i] and returns the next
// read position.
func (s *rtfStripper) control(i int) int {
	src := s.src
	if i >= len(src) {
		return i
	}
	c := src[i]
	switch {
	case isASCIILetter(c):
		j := i
		for j < len(src) && isASCIILetter(src[j]) {
			j++
		}
		word := string(src[i:j])
		k := j
		if k < len(src) && (src[k] == '-' || isASCIIDigit(src[k])) {
			k++
			for k < len(src) && isASCIIDigit(src[k]) {
				k++
			}
		}
		param, hasParam := 0, k > j
		if hasParam {
			param, _ = strconv.Atoi(string(src[j:k]))
		}
		if k < len(src) && src[k] == ' ' {
			k++
		}
		if word == "bin" && hasParam && param > 0 {
			k += param
		}
		s.word(word, param, hasParam)
		return k
	case c == '*':
		if s.atGroup {
			s.cur.skip = true
		} else {
			s.text("*")
		}
		return i + 1
	case c == '\'':
		if i+2 < len(src) {
			if b, err := strconv.ParseUint(string(src[i+1:i+3]), 16, 8); err == nil {
				s.atGroup = false
				if !s.consumeFallback() && !s.cur.skip {
					s.pending = append(s.pending, byte(b))
				}
			}
		}
		return i + 3
	case c == '\\', c == '{', c == '}':
		s.text(string(c))
		return i + 1
	case c == '~':
		s.text(" ")
		return i + 1
	case c == '_':
		s.text("-")
		return i + 1
	case c == '\r', c == '\n':
		s.text("\n")
		return i + 1
	}
	return i + 1
}

func (s *rtfStripper) word(word string, param int, hasParam bool) {
	defer func() { s.atGroup = false }()
	if s.atGroup && rtfSkipDestinations[word] {
		s.cur.skip = true
		return
	}
	switch word {
	case "ansicpg":
		if enc := codepageFor(param); enc != nil {
			s.flush()
			s.codepage = enc
		}
	case "uc":
		if hasParam {
			s.cur.uc = param
		}
	case "u":
		if param < 0 {
			param += 65536
		}
		if !s.cur.skip {
			s.flush()
			s.out.WriteRune(rune(param))
		}
		s.skipChars = s.cur.uc
	default:
		if sym, ok := rtfSymbols[word]; ok && !s.cur.skip {
			s.flush()
			s.out.WriteString(sym)
		}
	}
}

func (s *rtfStripper) text(t string) {
	s.atGroup = false
	if s.consumeFallback() || s.cur.skip {
		return
	}
	s.flush()
	s.out.WriteString(t)
}

func (s *rtfStripper) literalByte(b byte) {
	if s.consumeFallback() || s.cur.skip {
		return
	}
	if b < utf8.RuneSelf {
		s.flush()
		s.out.WriteByte(b)
		return
	}
	s.pending = append(s.pending, b)
}

// consumeFallback swallows one replacement character following a \uN escape.
func (s *rtfStripper) consumeFallback() bool {
	if s.skipChars > 0 {
		s.skipChars--
		return true
	}
	return false
}

func (s *rtfStripper) flush() {
	if len(s.pending) == 0 {
		return
	}
	decoded, err := s.codepage.NewDecoder().Bytes(s.pending)
	if err != nil {
		decoded = s.pending
	}
	s.out.Write(decoded)
	s.pending = s.pending[:0]
}

func codepageFor(cp int) encoding.Encoding {
	switch cp {
	case 1251:
		return charmap.Windows1251
	case 1252:
		return charmap.Windows1252
	case 866:
		return charmap.CodePage866
	case 20866:
		return charmap.KOI8R
	case 28595:
		return charmap.ISO8859_5
	}
	return nil
}

func isASCIILetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

func isASCIIDigit(c byte) bool { return c >= '0' && c <= '9' }

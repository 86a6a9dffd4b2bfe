package extract

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"
)

var (
	rtfToken = regexp.MustCompile(`(?i)\\([a-z]{1,32})(-?\d{1,10})? ?|\\'([0-9a-f]{2})|\\([^a-z])|([{}])|[\r\n]+|(.)`)

	// groups whose content is never text
	rtfDestinations = map[string]bool{
		"fonttbl": true, "colortbl": true, "stylesheet": true, "info": true, "pict": true,
		"header": true, "headerl": true, "headerr": true, "headerf": true,
		"footer": true, "footerl": true, "footerr": true, "footerf": true,
		"footnote": true, "listtable": true, "listoverridetable": true, "revtbl": true,
		"rsidtbl": true, "generator": true, "xmlnstbl": true, "themedata": true,
		"colorschememapping": true, "latentstyles": true, "datastore": true, "object": true,
		"fldinst": true, "filetbl": true, "pgdsctbl": true, "mmathPr": true, "author": true,
		"operator": true, "title": true, "subject": true, "keywords": true, "comment": true,
		"doccomm": true, "company": true, "category": true, "bkmkstart": true, "bkmkend": true,
	}

	rtfSpecials = map[string]string{
		"par": "\n", "line": "\n", "sect": "\n\n", "page": "\n\n", "row": "\n", "cell": "\t",
		"tab": "\t", "emdash": "—", "endash": "–", "emspace": " ", "enspace": " ",
		"qmspace": " ", "bullet": "•", "lquote": "‘", "rquote": "’",
		"ldblquote": "“", "rdblquote": "”",
	}

	// cp1252 code points that differ from latin-1
	cp1252 = map[byte]rune{
		0x80: '€', 0x82: '‚', 0x83: 'ƒ', 0x84: '„', 0x85: '…', 0x86: '†', 0x87: '‡',
		0x88: 'ˆ', 0x89: '‰', 0x8A: 'Š', 0x8B: '‹', 0x8C: 'Œ', 0x8E: 'Ž', 0x91: '‘',
		0x92: '’', 0x93: '“', 0x94: '”', 0x95: '•', 0x96: '–', 0x97: '—', 0x98: '˜',
		0x99: '™', 0x9A: 'š', 0x9B: '›', 0x9C: 'œ', 0x9E: 'ž', 0x9F: 'Ÿ',
	}
)

type rtfGroup struct {
	ucSkip    int
	ignorable bool
}

// rtfText strips RTF control words and non-text destinations from data.
func rtfText(data []byte) string {
	var (
		out       strings.Builder
		stack     []rtfGroup
		ignorable bool
		ucSkip    = 1
		curSkip   int
		highSurr  rune // first half of a \u surrogate pair
	)
	doc := string(data)

	for _, m := range rtfToken.FindAllStringSubmatchIndex(doc, -1) {
		group := func(i int) string {
			if m[2*i] < 0 {
				return ""
			}
			return doc[m[2*i]:m[2*i+1]]
		}
		word, arg, hex, char, brace, tchar := group(1), group(2), group(3), group(4), group(5), group(6)

		switch {
		case brace != "":
			curSkip = 0
			if brace == "{" {
				stack = append(stack, rtfGroup{ucSkip: ucSkip, ignorable: ignorable})
			} else if n := len(stack); n > 0 {
				ucSkip, ignorable = stack[n-1].ucSkip, stack[n-1].ignorable
				stack = stack[:n-1]
			}

		case char != "":
			curSkip = 0
			switch char {
			case "*":
				ignorable = true
			case "~":
				if !ignorable {
					out.WriteByte(' ')
				}
			case "_":
				if !ignorable {
					out.WriteByte('-')
				}
			case "{", "}", `\`:
				if !ignorable {
					out.WriteString(char)
				}
			case "\n", "\r":
				if !ignorable {
					out.WriteByte('\n')
				}
			}

		case word != "":
			curSkip = 0
			lword := strings.ToLower(word)
			switch {
			case rtfDestinations[word] || rtfDestinations[lword]:
				ignorable = true
			case ignorable:
			case rtfSpecials[lword] != "":
				out.WriteString(rtfSpecials[lword])
			case lword == "uc":
				if n, err := strconv.Atoi(arg); err == nil && n >= 0 {
					ucSkip = n
				}
			case lword == "u":
				if n, err := strconv.Atoi(arg); err == nil {
					if n < 0 {
						n += 0x10000
					}
					r := rune(n)
					switch {
					case r >= 0xD800 && r < 0xDC00:
						highSurr = r
					case utf16.IsSurrogate(r):
						out.WriteRune(utf16.DecodeRune(highSurr, r))
						highSurr = 0
					default:
						out.WriteRune(r)
						highSurr = 0
					}
					curSkip = ucSkip
				}
			}

		case hex != "":
			if curSkip > 0 {
				curSkip--
			} else if !ignorable {
				b, _ := strconv.ParseUint(hex, 16, 8)
				out.WriteRune(decodeCP1252(byte(b)))
			}

		case tchar != "":
			if curSkip > 0 {
				curSkip--
			} else if !ignorable {
				out.WriteString(tchar)
			}
		}
	}
	return out.String()
}

func decodeCP1252(b byte) rune {
	if r, ok := cp1252[b]; ok {
		return r
	}
	return rune(b)
}

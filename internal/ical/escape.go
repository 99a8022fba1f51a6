package ical

import (
	"strings"
	"unicode/utf8"
)

// maxLineOctets is the content line limit from RFC 5545 section 3.1, excluding CRLF.
const maxLineOctets = 75

const foldSeparator = "\r\n "

var textEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\n", `\n`,
	`;`, `\;`,
	`,`, `\,`,
)

// Escape prepares a user supplied TEXT value: converts HTML to plain text when
// markup is set, escapes it and folds it at 75 octets. Empty input stays empty.
func Escape(text string, markup bool) string {
	return Fold(escapeValue(text, markup))
}

// escapeValue is Escape without folding. Folding of complete content lines
// happens when a document is encoded.
func escapeValue(text string, markup bool) string {
	if text == "" {
		return ""
	}
	if markup {
		text = HTMLToText(text)
		if text == "" {
			return ""
		}
	}
	return EscapeText(text)
}

// EscapeText escapes backslash, newline, semicolon and comma for a TEXT value.
func EscapeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return textEscaper.Replace(s)
}

// UnescapeText reverses EscapeText. Unknown escape pairs are kept verbatim.
func UnescapeText(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			sb.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case '\\', ';', ',':
			sb.WriteByte(s[i])
		case 'n', 'N':
			sb.WriteByte('\n')
		default:
			sb.WriteByte('\\')
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

// Fold splits a line so that no physical line is longer than 75 octets.
// Continuation lines start with a single space. Breaks are placed after the
// last space that fits, keeping the space on the earlier line, so Unfold gives
// back the input exactly. Escape pairs and UTF-8 sequences are never split.
func Fold(line string) string {
	if len(line) <= maxLineOctets {
		return line
	}

	var sb strings.Builder
	sb.Grow(len(line) + len(line)/maxLineOctets*len(foldSeparator))

	limit := maxLineOctets
	start := 0
	brk := -1
	for i := 0; i < len(line); {
		n := unitLen(line, i)
		if i+n-start > limit {
			cut := i
			if brk > start {
				cut = brk
			}
			sb.WriteString(line[start:cut])
			sb.WriteString(foldSeparator)
			start = cut
			brk = -1
			// the leading space of a continuation line counts against the limit
			limit = maxLineOctets - 1
			continue
		}
		if line[i] == ' ' {
			brk = i + 1
		}
		i += n
	}
	sb.WriteString(line[start:])
	return sb.String()
}

// Unfold removes line folding produced by Fold or any RFC 5545 writer.
func Unfold(s string) string {
	s = strings.ReplaceAll(s, "\r\n ", "")
	s = strings.ReplaceAll(s, "\r\n\t", "")
	s = strings.ReplaceAll(s, "\n ", "")
	return strings.ReplaceAll(s, "\n\t", "")
}

// unitLen returns the width in octets of the smallest unbreakable unit at i.
func unitLen(s string, i int) int {
	if s[i] == '\\' && i+1 < len(s) {
		_, n := utf8.DecodeRuneInString(s[i+1:])
		return 1 + n
	}
	_, n := utf8.DecodeRuneInString(s[i:])
	return n
}

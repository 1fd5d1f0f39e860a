package pdftext

import (
	"strconv"
	"strings"
)

// textFromContent pulls the show-text operands (Tj, TJ, ', ") out of a raw
// PDF content stream. Literal strings are unescaped, hex strings decoded
// as Latin-1. Text from fonts with custom CID encodings cannot be recovered
// this way and is skipped when it decodes to control characters.
func textFromContent(stream []byte) string {
	var out strings.Builder
	var pending []string

	i := 0
	n := len(stream)
	for i < n {
		switch stream[i] {
		case '(':
			s, next := parseLiteral(stream, i)
			pending = append(pending, s)
			i = next
		case '<':
			if i+1 < n && stream[i+1] == '<' {
				i += 2 // dictionary start, not a string
				continue
			}
			s, next := parseHex(stream, i)
			pending = append(pending, s)
			i = next
		case 'T':
			if i+1 < n {
				switch stream[i+1] {
				case 'j', 'J':
					flush(&out, &pending, " ")
					i += 2
					continue
				case '*', 'd', 'D':
					// Next-line and text-positioning operators.
					if out.Len() > 0 {
						out.WriteByte('\n')
					}
					pending = pending[:0]
					i += 2
					continue
				}
			}
			i++
		case '\'', '"':
			flush(&out, &pending, "\n")
			i++
		default:
			i++
		}
	}
	flush(&out, &pending, " ")
	return out.String()
}

func flush(out *strings.Builder, pending *[]string, sep string) {
	for _, s := range *pending {
		if s = sanitize(s); s != "" {
			out.WriteString(s)
			out.WriteString(sep)
		}
	}
	*pending = (*pending)[:0]
}

// sanitize drops fragments that are mostly control bytes, the telltale sign
// of a CID-encoded font this parser cannot decode.
func sanitize(s string) string {
	printable := 0
	for _, r := range s {
		if r >= 0x20 || r == '\n' || r == '\t' {
			printable++
		}
	}
	if printable*2 < len([]rune(s)) {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
}

// parseLiteral reads a PDF literal string starting at stream[start] == '('.
// Returns the decoded string and the index after the closing parenthesis.
func parseLiteral(stream []byte, start int) (string, int) {
	var b strings.Builder
	depth := 0
	i := start
	for i < len(stream) {
		c := stream[i]
		switch c {
		case '\\':
			if i+1 >= len(stream) {
				return b.String(), i + 1
			}
			next := stream[i+1]
			switch next {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'b', 'f':
				// formatting escapes carry no text
			case '(', ')', '\\':
				b.WriteByte(next)
			default:
				if next >= '0' && next <= '7' {
					// octal escape, up to three digits
					end := i + 2
					for end < len(stream) && end < i+4 && stream[end] >= '0' && stream[end] <= '7' {
						end++
					}
					if v, err := strconv.ParseUint(string(stream[i+1:end]), 8, 16); err == nil {
						b.WriteRune(rune(v))
					}
					i = end
					continue
				}
				b.WriteByte(next)
			}
			i += 2
		case '(':
			if depth > 0 {
				b.WriteByte(c)
			}
			depth++
			i++
		case ')':
			depth--
			if depth == 0 {
				return b.String(), i + 1
			}
			b.WriteByte(c)
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), i
}

// parseHex reads a PDF hex string starting at stream[start] == '<'. Returns
// the decoded string and the index after the closing bracket.
func parseHex(stream []byte, start int) (string, int) {
	i := start + 1
	var digits strings.Builder
	for i < len(stream) && stream[i] != '>' {
		c := stream[i]
		if isHexDigit(c) {
			digits.WriteByte(c)
		}
		i++
	}
	if i < len(stream) {
		i++ // consume '>'
	}

	hex := digits.String()
	if len(hex)%2 == 1 {
		hex += "0" // trailing zero is implied
	}
	var b strings.Builder
	for j := 0; j+1 < len(hex); j += 2 {
		v, err := strconv.ParseUint(hex[j:j+2], 16, 8)
		if err != nil {
			break
		}
		b.WriteRune(rune(v))
	}
	return b.String(), i
}

func isHexDigit(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

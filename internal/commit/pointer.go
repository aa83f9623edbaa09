package commit

import "strings"

// splitPointer splits an RFC 6901 JSON pointer into unescaped segments.
func splitPointer(pointer string) []string {
	pointer = strings.TrimPrefix(pointer, "/")
	if pointer == "" {
		return nil
	}
	parts := strings.Split(pointer, "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		p = strings.ReplaceAll(p, "~0", "~")
		parts[i] = p
	}
	return parts
}

func arrayIndex(seg string, length int) (int, bool) {
	if seg == "-" {
		return length, false // append marker, no existing element
	}
	n := 0
	for _, r := range seg {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	if n < 0 || n >= length {
		return 0, false
	}
	return n, true
}

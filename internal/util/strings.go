package util

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeKey canonicalizes a user-submitted credential string. Keys are
// copied out of styled web pages and chat clients, which can introduce
// NFKD-decomposable codepoints (fullwidth letters, compatibility forms)
// and stray whitespace. The key alphabet is uppercase, so case is folded
// too.
func NormalizeKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(norm.NFKD.String(s)))
}

package deck

import (
	"encoding/hex"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// SynthesizeID derives a stable question id from its text and position in
// the file, so re-importing an unchanged file maps to the same identities.
func SynthesizeID(text string, index int) string {
	sum := blake2b.Sum256([]byte(strings.TrimSpace(text) + "\x00" + strconv.Itoa(index)))
	return hex.EncodeToString(sum[:8])
}

// ContentKey hashes a file's name and bytes for cache lookups.
func ContentKey(name string, data []byte) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(parserVersion))
	h.Write([]byte{0})
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// parserVersion invalidates cached decks when parsing rules change.
const parserVersion = "deck/v1"

// humanizeFileName turns "python_basics.json" into "Python Basics".
func humanizeFileName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	base = strings.Join(strings.Fields(base), " ")
	return cases.Title(language.Und).String(base)
}

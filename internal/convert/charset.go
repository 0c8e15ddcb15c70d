package convert

import (
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// decodeText returns src as UTF-8 along with the name of the encoding it was
// decoded from. Valid UTF-8 passes through untouched; anything else goes
// through charset detection with a Windows-1252 fallback, so a stray byte can
// never abort a conversion.
func decodeText(src []byte) ([]byte, string) {
	if utf8.Valid(src) {
		return src, "utf-8"
	}

	name := "windows-1252"
	dec := charmap.Windows1252.NewDecoder()
	if detected, err := chardet.NewTextDetector().DetectBest(src); err == nil {
		if d, ok := decoderFor(detected.Charset); ok {
			name = detected.Charset
			dec = d
		}
	}

	out, err := dec.Bytes(src)
	if err != nil {
		// Single-byte decoders do not fail; guard anyway.
		return src, "utf-8"
	}
	return out, name
}

func decoderFor(charset string) (*encoding.Decoder, bool) {
	switch charset {
	case "ISO-8859-1":
		return charmap.ISO8859_1.NewDecoder(), true
	case "ISO-8859-15":
		return charmap.ISO8859_15.NewDecoder(), true
	case "windows-1252":
		return charmap.Windows1252.NewDecoder(), true
	default:
		return nil, false
	}
}

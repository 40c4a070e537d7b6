package smpp

import (
	"fmt"
	"unicode/utf16"

	"github.com/forPelevin/gomoji"

	"github.com/example/sms-dispatch/internal/models"
)

// Segment sizes in octets. The default alphabet leaves 153 octets per part of
// a segmented message; UCS-2 leaves 70.
const (
	SegmentSizeDefault = 153
	SegmentSizeUCS2    = 70
)

// Encoded is the wire-ready representation of a message text.
type Encoded struct {
	Payload     []byte
	DataCoding  byte
	SegmentSize int
	// Text is the message as selected by language preference, kept for the
	// reporting row.
	Text string
}

// EncodeText selects the message text by language preference and encodes it.
// Plain English rides the single-byte default alphabet; Arabic, mixed and
// emoji-bearing English are encoded UCS-2. Flash messages keep their alphabet
// and carry the flash message class on top of it.
func EncodeText(c *models.Computed) (Encoded, error) {
	switch c.LanguagePreference {
	case models.LangEnglish:
		if c.TextEng == "" {
			return Encoded{}, fmt.Errorf("smpp: no english text for language preference %s", c.LanguagePreference)
		}
		if gomoji.ContainsEmoji(c.TextEng) {
			return encodeUCS2(c.TextEng, c.FlashSMSEnabled), nil
		}
		return encodeDefault(c.TextEng, c.FlashSMSEnabled), nil
	case models.LangArabic:
		if c.TextAr == "" {
			return Encoded{}, fmt.Errorf("smpp: no arabic text for language preference %s", c.LanguagePreference)
		}
		return encodeUCS2(c.TextAr, c.FlashSMSEnabled), nil
	case models.LangMixed:
		if c.TextMixed == "" {
			return Encoded{}, fmt.Errorf("smpp: no mixed text for language preference %s", c.LanguagePreference)
		}
		return encodeUCS2(c.TextMixed, c.FlashSMSEnabled), nil
	default:
		return Encoded{}, fmt.Errorf("smpp: unknown language preference %q", c.LanguagePreference)
	}
}

func encodeDefault(text string, flash bool) Encoded {
	payload := make([]byte, 0, len(text))
	for _, r := range text {
		// Latin-1 narrowing, the conservative stand-in for GSM-7.
		payload = append(payload, byte(r))
	}
	dcs := DCSDefault
	if flash {
		dcs |= DCSFlash
	}
	return Encoded{Payload: payload, DataCoding: dcs, SegmentSize: SegmentSizeDefault, Text: text}
}

func encodeUCS2(text string, flash bool) Encoded {
	units := utf16.Encode([]rune(text))
	payload := make([]byte, 0, len(units)*2)
	for _, u := range units {
		payload = append(payload, byte(u>>8), byte(u))
	}
	dcs := DCSUCS2
	if flash {
		dcs |= DCSFlash
	}
	return Encoded{Payload: payload, DataCoding: dcs, SegmentSize: SegmentSizeUCS2, Text: text}
}

// SplitSegments cuts the payload into segment-size chunks. A payload that
// fits one segment yields a single chunk.
func SplitSegments(payload []byte, segmentSize int) [][]byte {
	if segmentSize <= 0 || len(payload) <= segmentSize {
		return [][]byte{payload}
	}
	total := (len(payload) + segmentSize - 1) / segmentSize
	out := make([][]byte, 0, total)
	for start := 0; start < len(payload); start += segmentSize {
		end := start + segmentSize
		if end > len(payload) {
			end = len(payload)
		}
		out = append(out, payload[start:end])
	}
	return out
}

package smpp_test

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/example/sms-dispatch/internal/models"
	"github.com/example/sms-dispatch/internal/smpp"
)

func newSubmitter(t *testing.T, session smpp.Session) *smpp.Submitter {
	t.Helper()
	s, err := smpp.NewSubmitter(session, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error building submitter: %v", err)
	}
	return s
}

func englishRecord(text string) *models.PipelineRecord {
	return &models.PipelineRecord{
		Computed: models.Computed{
			LanguagePreference: models.LangEnglish,
			TextEng:            text,
			SenderID:           "BRAND",
			To:                 "0501234567",
		},
	}
}

func TestEncodeTextEnglishDefaultAlphabet(t *testing.T) {
	enc, err := smpp.EncodeText(&models.Computed{
		LanguagePreference: models.LangEnglish,
		TextEng:            "hello",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if enc.DataCoding != smpp.DCSDefault {
		t.Fatalf("expected default DCS, got 0x%02x", enc.DataCoding)
	}
	if enc.SegmentSize != smpp.SegmentSizeDefault {
		t.Fatalf("expected segment size %d, got %d", smpp.SegmentSizeDefault, enc.SegmentSize)
	}
	if len(enc.Payload) != 5 {
		t.Fatalf("expected 5 octets, got %d", len(enc.Payload))
	}
}

func TestEncodeTextEnglishWithEmojiFallsBackToUCS2(t *testing.T) {
	enc, err := smpp.EncodeText(&models.Computed{
		LanguagePreference: models.LangEnglish,
		TextEng:            "hello 🎉",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if enc.DataCoding != smpp.DCSUCS2 {
		t.Fatalf("expected UCS2 DCS for emoji text, got 0x%02x", enc.DataCoding)
	}
	if enc.SegmentSize != smpp.SegmentSizeUCS2 {
		t.Fatalf("expected segment size %d, got %d", smpp.SegmentSizeUCS2, enc.SegmentSize)
	}
}

func TestEncodeTextArabicIsUCS2(t *testing.T) {
	enc, err := smpp.EncodeText(&models.Computed{
		LanguagePreference: models.LangArabic,
		TextAr:             "مرحبا",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if enc.DataCoding != smpp.DCSUCS2 {
		t.Fatalf("expected UCS2 DCS, got 0x%02x", enc.DataCoding)
	}
	// Five BMP runes encode to ten octets.
	if len(enc.Payload) != 10 {
		t.Fatalf("expected 10 octets, got %d", len(enc.Payload))
	}
}

func TestEncodeTextFlashKeepsEncodingChangesDCS(t *testing.T) {
	enc, err := smpp.EncodeText(&models.Computed{
		LanguagePreference: models.LangEnglish,
		TextEng:            "urgent",
		FlashSMSEnabled:    true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if enc.DataCoding != smpp.DCSDefault|smpp.DCSFlash {
		t.Fatalf("expected flash default-alphabet DCS, got 0x%02x", enc.DataCoding)
	}
}

func TestEncodeTextFlashArabicKeepsUCS2(t *testing.T) {
	enc, err := smpp.EncodeText(&models.Computed{
		LanguagePreference: models.LangArabic,
		TextAr:             "مرحبا",
		FlashSMSEnabled:    true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The flash class composes with the UCS-2 alphabet bit, 0x18.
	if enc.DataCoding != smpp.DCSUCS2|smpp.DCSFlash {
		t.Fatalf("expected flash UCS2 DCS, got 0x%02x", enc.DataCoding)
	}
	if len(enc.Payload) != 10 {
		t.Fatalf("expected 10 octets, got %d", len(enc.Payload))
	}
	if enc.SegmentSize != smpp.SegmentSizeUCS2 {
		t.Fatalf("expected UCS2 segment size, got %d", enc.SegmentSize)
	}
}

func TestEncodeTextMissingTextFails(t *testing.T) {
	if _, err := smpp.EncodeText(&models.Computed{LanguagePreference: models.LangMixed}); err == nil {
		t.Fatalf("expected error for missing mixed text")
	}
	if _, err := smpp.EncodeText(&models.Computed{LanguagePreference: "9"}); err == nil {
		t.Fatalf("expected error for unknown language preference")
	}
}

func TestSubmitSingleSegment(t *testing.T) {
	session := smpp.NewMockSession()
	if err := session.Bind(context.Background()); err != nil {
		t.Fatalf("unexpected bind error: %v", err)
	}
	sub := newSubmitter(t, session)

	result, err := sub.Submit(context.Background(), englishRecord("short message"))
	if err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	if result.MessageID == "" || len(result.SegmentIDs) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	segs := session.Submitted()
	if len(segs) != 1 {
		t.Fatalf("expected one submission, got %d", len(segs))
	}
	if segs[0].Sar != nil {
		t.Fatalf("single segment must not carry sar metadata")
	}
	if segs[0].SourceAddr != "BRAND" || segs[0].DestAddr != "0501234567" {
		t.Fatalf("unexpected addressing: %+v", segs[0])
	}
}

func TestSubmitSegmentsLongUCS2Message(t *testing.T) {
	session := smpp.NewMockSession()
	if err := session.Bind(context.Background()); err != nil {
		t.Fatalf("unexpected bind error: %v", err)
	}
	sub := newSubmitter(t, session)

	// 155 BMP runes encode to 310 octets, which is five 70-octet segments.
	rec := &models.PipelineRecord{
		Computed: models.Computed{
			LanguagePreference: models.LangArabic,
			TextAr:             strings.Repeat("م", 155),
			SenderID:           "BRAND",
			To:                 "0501234567",
		},
	}

	result, err := sub.Submit(context.Background(), rec)
	if err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	if len(result.SegmentIDs) != 5 {
		t.Fatalf("expected 5 segment ids, got %d", len(result.SegmentIDs))
	}
	if result.MessageID != result.SegmentIDs[4] {
		t.Fatalf("expected the last segment id to be retained, got %s", result.MessageID)
	}

	segs := session.Submitted()
	if len(segs) != 5 {
		t.Fatalf("expected 5 submissions, got %d", len(segs))
	}
	ref := segs[0].Sar.RefNum
	for i, seg := range segs {
		if seg.Sar == nil {
			t.Fatalf("segment %d missing sar metadata", i)
		}
		if seg.Sar.RefNum != ref {
			t.Fatalf("segment %d has reference %d, want %d", i, seg.Sar.RefNum, ref)
		}
		if seg.Sar.SeqNum != i+1 || seg.Sar.Total != 5 {
			t.Fatalf("segment %d has seq %d/%d", i, seg.Sar.SeqNum, seg.Sar.Total)
		}
	}
	if len(segs[0].Payload) != 70 || len(segs[4].Payload) != 30 {
		t.Fatalf("unexpected chunk sizes: first=%d last=%d", len(segs[0].Payload), len(segs[4].Payload))
	}
}

func TestSubmitRebindsUnboundSession(t *testing.T) {
	session := smpp.NewMockSession()
	sub := newSubmitter(t, session)

	if session.IsBound() {
		t.Fatalf("expected fresh session to be unbound")
	}
	if _, err := sub.Submit(context.Background(), englishRecord("after rebind")); err != nil {
		t.Fatalf("expected rebind then submit to succeed, got %v", err)
	}
	if !session.IsBound() {
		t.Fatalf("expected session bound after submit")
	}
}

func TestSubmitRebindFailureAbortsRecord(t *testing.T) {
	session := smpp.NewMockSession()
	session.BindErr = smpp.ErrSessionClosed
	sub := newSubmitter(t, session)

	if _, err := sub.Submit(context.Background(), englishRecord("never sent")); err == nil {
		t.Fatalf("expected submit to fail when rebind fails")
	}
	if len(session.Submitted()) != 0 {
		t.Fatalf("expected no submissions after failed rebind")
	}
}

func TestReceiptDelivery(t *testing.T) {
	session := smpp.NewMockSession()
	sub := newSubmitter(t, session)

	var got []smpp.Receipt
	sub.OnReceipt(func(r smpp.Receipt) { got = append(got, r) })

	session.DeliverReceipt(smpp.Receipt{MessageID: "1000", FinalStatus: "DELIVRD"})
	if len(got) != 1 || got[0].MessageID != "1000" {
		t.Fatalf("unexpected receipts: %+v", got)
	}
}

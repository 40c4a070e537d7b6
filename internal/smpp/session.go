package smpp

import (
	"context"
	"time"
)

// Data coding scheme values carried on submitted segments. The flash bit is
// a message class, not an alphabet; it is OR-ed onto the alphabet selection.
const (
	DCSDefault byte = 0x00 // single-byte default alphabet
	DCSUCS2    byte = 0x08 // 16-bit alphabet
	DCSFlash   byte = 0x10 // message class 0, shown immediately
)

// SarParams is the segmentation/reassembly metadata attached to one part of a
// multi-segment message.
type SarParams struct {
	RefNum byte
	SeqNum int
	Total  int
}

// Segment is one protocol submission: either a whole short message or one
// part of a segmented message when Sar is set.
type Segment struct {
	SourceAddr string
	DestAddr   string
	Payload    []byte
	DataCoding byte
	Sar        *SarParams
}

// Receipt is a parsed delivery confirmation pushed by the gateway.
type Receipt struct {
	MessageID   string
	FinalStatus string
	DoneDate    time.Time
}

// ReceiptHandler consumes delivery receipts. Implementations must not block;
// the session invokes the handler on its receive path.
type ReceiptHandler func(Receipt)

// Session is the stateful gateway session shared by all dispatch workers.
// Submissions and rebinds go through the Submitter, which serializes access;
// workers never call the session directly.
type Session interface {
	Bind(ctx context.Context) error
	IsBound() bool
	Submit(ctx context.Context, seg Segment) (string, error)
	OnReceipt(handler ReceiptHandler)
	Close() error
}

package metrics

import (
	"context"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// Segment times one operation inside the New Relic transaction carried by a
// context. A nil *Segment is valid and records nothing, so callers never need
// to check whether tracing is enabled.
type Segment struct {
	txn *newrelic.Transaction
	seg *newrelic.Segment
}

// StartSegment starts a segment named "<component> <operation>", or returns
// nil when ctx carries no transaction.
func StartSegment(ctx context.Context, component, operation string) *Segment {
	txn := newrelic.FromContext(ctx)
	if txn == nil {
		return nil
	}

	return &Segment{
		txn: txn,
		seg: txn.StartSegment(component + " " + operation),
	}
}

func (s *Segment) Attribute(key string, value interface{}) {
	if s == nil {
		return
	}
	s.seg.AddAttribute(key, value)
}

// Fail reports err against the enclosing transaction. Nil errors are ignored.
func (s *Segment) Fail(err error) {
	if s == nil || err == nil {
		return
	}
	s.txn.NoticeError(err)
}

func (s *Segment) End() {
	if s == nil {
		return
	}
	s.seg.End()
}

package journal

import (
	"context"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestMemorySinkRecordAndReplay(t *testing.T) {
	testSinkRecordAndReplay(t, NewMemorySink())
}

func TestPebbleSinkRecordAndReplay(t *testing.T) {
	c := qt.New(t)
	sink, err := OpenPebbleSink(filepath.Join(t.TempDir(), "journal"))
	c.Assert(err, qt.IsNil)
	testSinkRecordAndReplay(t, sink)
}

func testSinkRecordAndReplay(t *testing.T, sink Sink) {
	c := qt.New(t)
	ctx := context.Background()

	recs := []Record{
		{Kind: KindTransactionPrepareSend, FutureID: "f1", NetworkInteractionID: 1, Nonce: 5},
		{Kind: KindTransactionPrepareSend, FutureID: "f2", NetworkInteractionID: 2, Nonce: 6},
	}
	for _, r := range recs {
		c.Assert(sink.Record(ctx, r), qt.IsNil)
	}

	got, err := sink.Records(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, recs)

	c.Assert(sink.Close(), qt.IsNil)
	c.Assert(sink.Record(ctx, recs[0]), qt.Equals, ErrClosed)
	_, err = sink.Records(ctx)
	c.Assert(err, qt.Equals, ErrClosed)
}

func TestPebbleSinkRecoversSequenceAcrossReopen(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(t.TempDir(), "journal")

	sink, err := OpenPebbleSink(path)
	c.Assert(err, qt.IsNil)
	c.Assert(sink.Record(context.Background(), Record{Kind: KindTransactionPrepareSend, FutureID: "f1", NetworkInteractionID: 1, Nonce: 1}), qt.IsNil)
	c.Assert(sink.Close(), qt.IsNil)

	reopened, err := OpenPebbleSink(path)
	c.Assert(err, qt.IsNil)
	defer reopened.Close()

	c.Assert(reopened.Record(context.Background(), Record{Kind: KindTransactionPrepareSend, FutureID: "f2", NetworkInteractionID: 2, Nonce: 2}), qt.IsNil)

	got, err := reopened.Records(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.HasLen, 2)
	c.Assert(got[0].FutureID, qt.Equals, "f1")
	c.Assert(got[1].FutureID, qt.Equals, "f2")
}

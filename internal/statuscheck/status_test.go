package statuscheck_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/local/pdftools/internal/converter"
	"github.com/local/pdftools/internal/statuscheck"
)

func TestSummary(t *testing.T) {
	ok := statuscheck.PingFunc(func(context.Context) error { return nil })
	down := statuscheck.PingFunc(func(context.Context) error {
		return errors.New(strings.Repeat("x", 300))
	})

	c := statuscheck.New(statuscheck.Options{
		Queue:       ok,
		QueueKind:   "memory",
		Storage:     down,
		StorageKind: "s3",
		Office:      converter.NewLibreOffice("definitely-not-soffice", 0),
	})
	s := c.Summary(context.Background())

	gt.True(t, s.Queue.OK)
	gt.Equal(t, s.Queue.Message, "Connected (memory)")
	gt.False(t, s.Storage.OK)
	gt.Equal(t, len(s.Storage.Message), 120)
	gt.False(t, s.LibreOffice.OK)
	gt.True(t, s.MuPDF.OK)
	gt.False(t, s.Ready())
}

func TestSummaryTimeout(t *testing.T) {
	slow := statuscheck.PingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := statuscheck.New(statuscheck.Options{Queue: slow}).Summary(ctx)
	gt.False(t, s.Queue.OK)
	gt.False(t, s.Storage.OK)
	gt.Equal(t, s.Storage.Message, "client unavailable")
}

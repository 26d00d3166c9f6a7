package imap

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailscope/dto"
	mserrors "github.com/customeros/mailscope/internal/errors"
	"github.com/customeros/mailscope/internal/logger"
	"github.com/customeros/mailscope/internal/tracing"
)

type MailboxFetcher struct {
	log logger.Logger
}

func NewMailboxFetcher(log logger.Logger) *MailboxFetcher {
	return &MailboxFetcher{log: log}
}

// SelectFolder opens the folder read-only and returns its message count.
func (f *MailboxFetcher) SelectFolder(ctx context.Context, c *client.Client, folder string) (uint32, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailboxFetcher.SelectFolder")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagComponentIMAP(span)
	span.SetTag("folder", folder)

	mbox, err := c.Select(folder, true)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, fmt.Errorf("failed to select folder %s: %w", folder, err)
	}

	span.SetTag("folder.messages", mbox.Messages)
	return mbox.Messages, nil
}

// FetchBatch returns up to limit messages, skipping the offset newest ones.
// Messages come back newest first.
func (f *MailboxFetcher) FetchBatch(ctx context.Context, c *client.Client, folder string, limit, offset uint32) ([]*dto.RawMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailboxFetcher.FetchBatch")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagComponentIMAP(span)
	span.SetTag("folder", folder)
	span.SetTag("limit", limit)
	span.SetTag("offset", offset)

	total, err := f.SelectFolder(ctx, c, folder)
	if err != nil {
		return nil, err
	}

	start, end, ok := seqRange(total, limit, offset)
	if !ok {
		return []*dto.RawMessage{}, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddRange(start, end)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchInternalDate,
		imap.FetchRFC822Size,
		imap.FetchUid,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, end-start+1)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, items, messages)
	}()

	batch := make([]*dto.RawMessage, 0, end-start+1)
	for msg := range messages {
		raw, err := f.toRawMessage(folder, msg, section)
		if err != nil {
			parseErr := &mserrors.MessageParseError{Folder: folder, SeqNum: msg.SeqNum, Err: err}
			f.log.Warnf("Skipping message: %v", parseErr)
			continue
		}
		batch = append(batch, raw)
	}

	if err := <-done; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to fetch %s:%d-%d: %w", folder, start, end, err)
	}

	sort.Slice(batch, func(i, j int) bool {
		return batch[i].SeqNum > batch[j].SeqNum
	})

	span.SetTag("fetched", len(batch))
	return batch, nil
}

// seqRange maps a newest-first window onto ascending sequence numbers.
func seqRange(total, limit, offset uint32) (start, end uint32, ok bool) {
	if limit == 0 || offset >= total {
		return 0, 0, false
	}
	end = total - offset
	start = 1
	if end > limit {
		start = end - limit + 1
	}
	return start, end, true
}

func (f *MailboxFetcher) toRawMessage(folder string, msg *imap.Message, section *imap.BodySectionName) (*dto.RawMessage, error) {
	raw := &dto.RawMessage{
		Folder:       folder,
		SeqNum:       msg.SeqNum,
		UID:          msg.Uid,
		Flags:        msg.Flags,
		InternalDate: msg.InternalDate,
		Size:         msg.Size,
	}

	applyEnvelope(raw, msg.Envelope)

	literal := msg.GetBody(section)
	if literal == nil {
		return nil, fmt.Errorf("server returned no body")
	}
	body, err := io.ReadAll(literal)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	if err := parseBody(raw, body); err != nil {
		return nil, err
	}
	return raw, nil
}

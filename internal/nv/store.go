package nv

import (
	"bytes"
	"context"
	"fmt"

	"github.com/muurk/qcdiag/internal/diag"
	"github.com/muurk/qcdiag/internal/nvcatalog"
	"github.com/muurk/qcdiag/internal/protocol"
	"go.uber.org/zap"
)

// MaxItemID is the highest NV item id.
const MaxItemID = 0xFFFF

// Item is a decoded NV item.
type Item struct {
	ID     uint16
	Index  uint16 // 0 for flat items
	Data   []byte // trailing zero padding removed
	Status protocol.NvStatus
	Name   string
}

// Label returns "0x226 (NV_UE_IMEI_I)" or "0x226", plus the index for sub items.
func (it *Item) Label() string {
	return itemLabel(it.ID, it.Index, it.Name, it.Index != 0)
}

func itemLabel(id, index uint16, name string, sub bool) string {
	s := fmt.Sprintf("0x%X", id)
	if sub {
		s += fmt.Sprintf(",0x%X", index)
	}
	if name != "" {
		s += " (" + name + ")"
	}
	return s
}

// Store reads and writes NV items.
type Store struct {
	client  *diag.Client
	catalog *nvcatalog.Catalog
	logger  *zap.Logger
	verify  *VerifyOptions
}

// NewStore builds a store. catalog may be nil; items then carry no names.
func NewStore(client *diag.Client, catalog *nvcatalog.Catalog) *Store {
	return &Store{
		client:  client,
		catalog: catalog,
		logger:  client.Logger(),
		verify:  DefaultVerifyOptions(),
	}
}

// WithVerifyOptions replaces the verify-after-write settings.
func (s *Store) WithVerifyOptions(opts *VerifyOptions) *Store {
	if opts == nil {
		opts = DefaultVerifyOptions()
	}
	s.verify = opts
	return s
}

// Read reads a flat item. An unanswered request is sent once more before
// giving up.
func (s *Store) Read(ctx context.Context, id uint16) (*Item, error) {
	op := fmt.Sprintf("nv read 0x%X", id)

	resp, err := s.client.SendRetryEmpty(ctx, protocol.BuildNVRead(id))
	if err != nil {
		return nil, diag.Wrap(op, err)
	}
	if err := protocol.CheckEcho(resp, byte(protocol.CmdNVRead)); err != nil {
		return nil, diag.Wrap(op, err)
	}
	rec, err := protocol.ParseNVItem(resp)
	if err != nil {
		return nil, diag.Wrap(op, err)
	}
	return s.item(rec, 0), nil
}

// ReadSub reads an indexed item through the NV subsystem.
func (s *Store) ReadSub(ctx context.Context, id, index uint16) (*Item, error) {
	op := fmt.Sprintf("nv read 0x%X index %d", id, index)

	resp, err := s.client.SendRetryEmpty(ctx, protocol.BuildNVSubRead(id, index))
	if err != nil {
		return nil, diag.Wrap(op, err)
	}
	if err := protocol.CheckEcho(resp, byte(protocol.CmdSubsystem)); err != nil {
		return nil, diag.Wrap(op, err)
	}
	rec, err := protocol.ParseNVSubItem(resp)
	if err != nil {
		return nil, diag.Wrap(op, err)
	}
	return s.item(rec, index), nil
}

func (s *Store) item(rec *protocol.NVRecord, index uint16) *Item {
	return &Item{
		ID:     rec.Item,
		Index:  index,
		Data:   rec.Data,
		Status: rec.Status,
		Name:   s.catalog.Name(rec.Item),
	}
}

// Write writes a flat item and reads it back. A read-back that differs is
// a verification failure.
func (s *Store) Write(ctx context.Context, id uint16, data []byte) error {
	op := fmt.Sprintf("nv write 0x%X", id)

	req, err := protocol.BuildNVWrite(id, data)
	if err != nil {
		return err
	}
	if err := s.sendWrite(ctx, op, req, byte(protocol.CmdNVWrite), protocol.ParseNVItem); err != nil {
		return err
	}
	return s.verifyWrite(ctx, op, data, func(ctx context.Context) (*Item, error) {
		return s.Read(ctx, id)
	})
}

// WriteSub writes an indexed item and reads it back.
func (s *Store) WriteSub(ctx context.Context, id, index uint16, data []byte) error {
	op := fmt.Sprintf("nv write 0x%X index %d", id, index)

	req, err := protocol.BuildNVSubWrite(id, index, data)
	if err != nil {
		return err
	}
	if err := s.sendWrite(ctx, op, req, byte(protocol.CmdSubsystem), protocol.ParseNVSubItem); err != nil {
		return err
	}
	return s.verifyWrite(ctx, op, data, func(ctx context.Context) (*Item, error) {
		return s.ReadSub(ctx, id, index)
	})
}

func (s *Store) sendWrite(ctx context.Context, op string, req []byte, echo byte, parse func([]byte) (*protocol.NVRecord, error)) error {
	resp, err := s.client.Send(ctx, req)
	if err != nil {
		return diag.Wrap(op, err)
	}
	if err := protocol.CheckEcho(resp, echo); err != nil {
		return diag.Wrap(op, err)
	}
	// Short echoes carry no status; the read-back decides.
	if rec, err := parse(resp); err == nil && !rec.Status.OK() {
		return diag.NewDomainError(op, uint32(rec.Status), rec.Status.String())
	}
	return nil
}

func (s *Store) verifyWrite(ctx context.Context, op string, data []byte, read func(context.Context) (*Item, error)) error {
	want := protocol.TrimPadding(data)

	got, err := verifyWithRetry(ctx, s.verify, func(ctx context.Context) ([]byte, bool, error) {
		it, err := read(ctx)
		if err != nil {
			return nil, false, err
		}
		if !it.Status.OK() {
			return it.Data, false, diag.NewDomainError(op, uint32(it.Status), it.Status.String())
		}
		return it.Data, bytes.Equal(it.Data, want), nil
	})
	if err != nil {
		return err
	}
	if !bytes.Equal(got, want) {
		return diag.NewVerificationFailure(op, want, got)
	}
	s.logger.Debug("NV write verified", zap.String("op", op), zap.Int("length", len(want)))
	return nil
}

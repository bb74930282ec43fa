package nv

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/muurk/qcdiag/internal/protocol"
	"go.uber.org/zap"
)

func statusLabel(s protocol.NvStatus) string {
	if l := s.String(); l != "" {
		return l
	}
	return fmt.Sprintf("0x%X", uint16(s))
}

// RestoreResult summarizes a restore run.
type RestoreResult struct {
	Written int
	Skipped int
	Failed  int
}

// Restore writes backup entries back to the device, verifying each. Only
// entries recorded with status OK are written. A failed item goes to
// errLog and the run continues.
func (s *Store) Restore(ctx context.Context, entries []BackupEntry, errLog io.Writer, progress func(percent float64)) (*RestoreResult, error) {
	res := &RestoreResult{}
	okLabel := protocol.NvOK.String()

	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if e.Status != okLabel {
			res.Skipped++
		} else if err := s.restoreOne(ctx, e); err != nil {
			res.Failed++
			if errLog != nil {
				fmt.Fprintf(errLog, "0x%04X: %v\n", e.ID, err)
			}
		} else {
			res.Written++
		}

		if progress != nil {
			progress(float64(i+1) * 100 / float64(len(entries)))
		}
	}

	s.logger.Info("NV restore finished",
		zap.Int("written", res.Written),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed))
	return res, nil
}

func (s *Store) restoreOne(ctx context.Context, e BackupEntry) error {
	data, err := hex.DecodeString(e.Data)
	if err != nil {
		return fmt.Errorf("bad hex data: %w", err)
	}
	return s.Write(ctx, e.ID, data)
}

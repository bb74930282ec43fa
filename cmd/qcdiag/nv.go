package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muurk/qcdiag/internal/nv"
	"github.com/muurk/qcdiag/internal/ui"
)

// NV command flags
var (
	backupErrors string
	backupFirst  string
	backupLast   string
)

func init() {
	nvBackupCmd.Flags().StringVar(&backupErrors, "errors", "", "Write items that could not be read to this file")
	nvBackupCmd.Flags().StringVar(&backupFirst, "first", "0", "First item id to scan")
	nvBackupCmd.Flags().StringVar(&backupLast, "last", "0xFFFF", "Last item id to scan")
	nvRestoreCmd.Flags().StringVar(&backupErrors, "errors", "", "Write items that could not be restored to this file")

	nvCmd.AddCommand(nvReadCmd)
	nvCmd.AddCommand(nvReadSubCmd)
	nvCmd.AddCommand(nvWriteCmd)
	nvCmd.AddCommand(nvWriteSubCmd)
	nvCmd.AddCommand(nvIMEICmd)
	nvCmd.AddCommand(nvBackupCmd)
	nvCmd.AddCommand(nvRestoreCmd)
	rootCmd.AddCommand(nvCmd)
}

var nvCmd = &cobra.Command{
	Use:   "nv",
	Short: "Read and write NV items",
	Long: `Read and write non-volatile (NV) items.

Item ids and indexes accept decimal or 0x prefixed hex. Every write is read
back and compared before it is reported as done.`,
}

// nvReadCmd implements the 'nv read' command
var nvReadCmd = &cobra.Command{
	Use:   "read <item>",
	Short: "Read an NV item",
	Example: `  qcdiag nv read 550
  qcdiag nv read 0x226`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUint16("item", args[0])
		if err != nil {
			return err
		}
		return withSession(cmd, "NV Read", "qcdiag nv read", []ui.Param{ui.P("Item", args[0])}, func(ctx context.Context, s *session, p *ui.Printer) error {
			store, err := s.nvStore()
			if err != nil {
				return err
			}
			item, err := store.Read(ctx, id)
			if err != nil {
				return err
			}
			printItem(p, item)
			return nil
		})
	},
}

// nvReadSubCmd implements the 'nv readsub' command
var nvReadSubCmd = &cobra.Command{
	Use:   "readsub <item> <index>",
	Short: "Read an NV item of a subscription",
	Example: `  # IMEI of the second SIM slot
  qcdiag nv readsub 550 1`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, index, err := parseItemIndex(args)
		if err != nil {
			return err
		}
		params := []ui.Param{ui.P("Item", args[0]), ui.P("Index", args[1])}
		return withSession(cmd, "NV Read", "qcdiag nv readsub", params, func(ctx context.Context, s *session, p *ui.Printer) error {
			store, err := s.nvStore()
			if err != nil {
				return err
			}
			item, err := store.ReadSub(ctx, id, index)
			if err != nil {
				return err
			}
			printItem(p, item)
			return nil
		})
	},
}

// nvWriteCmd implements the 'nv write' command
var nvWriteCmd = &cobra.Command{
	Use:     "write <item> <hex>",
	Short:   "Write an NV item",
	Example: `  qcdiag nv write 0x1234 "01 00 00 00"`,
	Args:    cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUint16("item", args[0])
		if err != nil {
			return err
		}
		data, err := parseHexPayload(args[1:])
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true
		if err := confirm(func() bool { return ui.NVWriteConfirmation(cmd.InOrStdin(), cmd.OutOrStdout(), args[0]) }); err != nil {
			return err
		}
		params := []ui.Param{ui.P("Item", args[0]), ui.P("Data", fmt.Sprintf("%d bytes", len(data)))}
		return withSession(cmd, "NV Write", "qcdiag nv write", params, func(ctx context.Context, s *session, p *ui.Printer) error {
			store, err := s.nvStore()
			if err != nil {
				return err
			}
			if err := store.Write(ctx, id, data); err != nil {
				return err
			}
			p.PrintSuccess("Item written and verified", ui.P("Item", args[0]))
			return nil
		})
	},
}

// nvWriteSubCmd implements the 'nv writesub' command
var nvWriteSubCmd = &cobra.Command{
	Use:   "writesub <item> <index> <hex>",
	Short: "Write an NV item of a subscription",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, index, err := parseItemIndex(args[:2])
		if err != nil {
			return err
		}
		data, err := parseHexPayload(args[2:])
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true
		label := fmt.Sprintf("%s index %s", args[0], args[1])
		if err := confirm(func() bool { return ui.NVWriteConfirmation(cmd.InOrStdin(), cmd.OutOrStdout(), label) }); err != nil {
			return err
		}
		params := []ui.Param{ui.P("Item", args[0]), ui.P("Index", args[1]), ui.P("Data", fmt.Sprintf("%d bytes", len(data)))}
		return withSession(cmd, "NV Write", "qcdiag nv writesub", params, func(ctx context.Context, s *session, p *ui.Printer) error {
			store, err := s.nvStore()
			if err != nil {
				return err
			}
			if err := store.WriteSub(ctx, id, index, data); err != nil {
				return err
			}
			p.PrintSuccess("Item written and verified", ui.P("Item", label))
			return nil
		})
	},
}

// nvIMEICmd implements the 'nv imei' command
var nvIMEICmd = &cobra.Command{
	Use:   "imei <imei1[,imei2,...]>",
	Short: "Write the IMEI of each subscription",
	Long: `Write one IMEI per subscription, separated by commas.

The first IMEI is written to item 550, the following ones to item 550 of
subscription 1, 2 and so on. Every IMEI must be 15 digits.`,
	Example: `  qcdiag nv imei 356938035643809
  qcdiag nv imei 356938035643809,356938035643817`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		imeis := strings.Split(args[0], ",")
		for i, imei := range imeis {
			imeis[i] = strings.TrimSpace(imei)
			if _, err := nv.ConvertIMEI(imeis[i]); err != nil {
				return err
			}
		}
		cmd.SilenceUsage = true
		if err := confirm(func() bool { return ui.IMEIWriteConfirmation(cmd.InOrStdin(), cmd.OutOrStdout(), imeis) }); err != nil {
			return err
		}

		params := []ui.Param{ui.P("IMEI", strings.Join(imeis, ", "))}
		return withSession(cmd, "IMEI Write", "qcdiag nv imei", params, func(ctx context.Context, s *session, p *ui.Printer) error {
			store, err := s.nvStore()
			if err != nil {
				return err
			}
			if err := store.WriteIMEI(ctx, imeis); err != nil {
				return err
			}
			details := make([]ui.Param, len(imeis))
			for i, imei := range imeis {
				details[i] = ui.P("Subscription "+strconv.Itoa(i), imei)
			}
			p.PrintSuccess("IMEI written and verified", details...)
			return nil
		})
	},
}

// nvBackupCmd implements the 'nv backup' command
var nvBackupCmd = &cobra.Command{
	Use:   "backup <file>",
	Short: "Back up every NV item to a JSON file",
	Long: `Read every NV item and save those the device holds to a JSON file.

Items the device answers as inactive are left out. Items that cannot be
read are skipped and, with --errors, listed in that file. A full scan reads
65536 items and takes several minutes.`,
	Example: `  qcdiag nv backup nv.json
  qcdiag nv backup nv.json --errors nv-errors.txt --first 0 --last 0x1000`,
	Args: cobra.ExactArgs(1),
	RunE: runNVBackup,
}

func runNVBackup(cmd *cobra.Command, args []string) error {
	first, err := parseUint16("--first", backupFirst)
	if err != nil {
		return err
	}
	last, err := parseUint16("--last", backupLast)
	if err != nil {
		return err
	}
	if last < first {
		return fmt.Errorf("--last 0x%X is below --first 0x%X", last, first)
	}
	cmd.SilenceUsage = true

	path := args[0]
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	runner := ui.NewRunner(ui.RunnerConfig{
		Title:   "NV Backup",
		Command: "qcdiag nv backup",
		Params:  withTransport(cfg, ui.P("Range", fmt.Sprintf("0x%04X..0x%04X", first, last)), ui.P("Output", path)),
		Unit:    ui.UnitItems,
		Output:  cmd.OutOrStdout(),
	})
	return runner.Run(cmd.Context(), func(ctx context.Context, report ui.ReportFunc) ([]ui.Param, error) {
		s, err := connect(cmd, cfg)
		if err != nil {
			return nil, err
		}
		defer s.Close()
		store, err := s.nvStore()
		if err != nil {
			return nil, err
		}

		errLog, closeLog, err := openErrorLog(backupErrors)
		if err != nil {
			return nil, err
		}
		defer closeLog()

		total := int64(last) - int64(first) + 1
		res, err := store.BackupAll(ctx, nv.BackupOptions{
			First:  first,
			Last:   last,
			Errors: errLog,
			Progress: func(percent float64) {
				report(int64(percent*float64(total)/100), total)
			},
		})
		if err != nil {
			return nil, err
		}

		if err := writeBackupFile(path, res.Entries); err != nil {
			return nil, err
		}
		details := []ui.Param{
			ui.P("File", path),
			ui.P("Items saved", strconv.Itoa(len(res.Entries))),
			ui.P("Items scanned", strconv.Itoa(res.Scanned)),
			ui.P("Read errors", strconv.Itoa(res.Failed)),
			ui.P("Run", res.RunID),
		}
		if res.Failed > 0 && backupErrors != "" {
			details = append(details, ui.P("Error log", backupErrors))
		}
		return details, nil
	})
}

// nvRestoreCmd implements the 'nv restore' command
var nvRestoreCmd = &cobra.Command{
	Use:   "restore <file>",
	Short: "Write a JSON backup back to the device",
	Long: `Write every item of a backup taken with 'qcdiag nv backup' back to the
device, verifying each write. Items the backup recorded with a status other
than ok are skipped. A failed item is reported and the restore continues.`,
	Args: cobra.ExactArgs(1),
	RunE: runNVRestore,
}

func runNVRestore(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	path := args[0]

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	entries, err := nv.ReadBackup(f)
	f.Close()
	if err != nil {
		return err
	}

	if err := confirm(func() bool { return ui.RestoreConfirmation(cmd.InOrStdin(), cmd.OutOrStdout(), len(entries)) }); err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	runner := ui.NewRunner(ui.RunnerConfig{
		Title:   "NV Restore",
		Command: "qcdiag nv restore",
		Params:  withTransport(cfg, ui.P("Backup", path), ui.P("Items", strconv.Itoa(len(entries)))),
		Unit:    ui.UnitItems,
		Output:  cmd.OutOrStdout(),
	})
	return runner.Run(cmd.Context(), func(ctx context.Context, report ui.ReportFunc) ([]ui.Param, error) {
		s, err := connect(cmd, cfg)
		if err != nil {
			return nil, err
		}
		defer s.Close()
		store, err := s.nvStore()
		if err != nil {
			return nil, err
		}

		errLog, closeLog, err := openErrorLog(backupErrors)
		if err != nil {
			return nil, err
		}
		defer closeLog()

		total := int64(len(entries))
		res, err := store.Restore(ctx, entries, errLog, func(percent float64) {
			report(int64(percent*float64(total)/100), total)
		})
		if err != nil {
			return nil, err
		}
		if res.Failed > 0 {
			return nil, fmt.Errorf("%d of %d items failed to restore", res.Failed, res.Written+res.Failed)
		}
		return []ui.Param{
			ui.P("Written", strconv.Itoa(res.Written)),
			ui.P("Skipped", strconv.Itoa(res.Skipped)),
		}, nil
	})
}

func printItem(p *ui.Printer, item *nv.Item) {
	p.PrintSuccess("NV item read",
		ui.P("Item", item.Label()),
		ui.P("Status", item.Status.String()),
		ui.P("Length", strconv.Itoa(len(item.Data))))
	p.PrintHexDump("Data", item.Data)
}

func parseItemIndex(args []string) (id, index uint16, err error) {
	if id, err = parseUint16("item", args[0]); err != nil {
		return 0, 0, err
	}
	if index, err = parseUint16("index", args[1]); err != nil {
		return 0, 0, err
	}
	return id, index, nil
}

// parseHexPayload joins args so "01 02" and 01 02 both work.
func parseHexPayload(args []string) ([]byte, error) {
	s := strings.ReplaceAll(strings.Join(args, ""), " ", "")
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no data to write")
	}
	return data, nil
}

// openErrorLog opens path for per-item failures. With an empty path they
// are only counted.
func openErrorLog(path string) (io.Writer, func(), error) {
	if path == "" {
		return io.Discard, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create error log: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func writeBackupFile(path string, entries []nv.BackupEntry) error {
	var buf bytes.Buffer
	if err := nv.WriteBackup(&buf, entries); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to save backup: %w", err)
	}
	return nil
}

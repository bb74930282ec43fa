package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/qcdiag/internal/efs"
	"github.com/muurk/qcdiag/internal/factimage"
	"github.com/muurk/qcdiag/internal/protocol"
	"github.com/muurk/qcdiag/internal/ui"
)

// EFS command flags
var (
	mkdirMode string
	catMax    uint32
	catLines  int
)

func init() {
	efsMkdirCmd.Flags().StringVar(&mkdirMode, "mode", "0755", "Directory permissions (octal)")
	efsCatCmd.Flags().Uint32Var(&catMax, "max", protocol.MaxEfsTransfer, "Largest reply to accept in bytes")
	efsCatCmd.Flags().IntVar(&catLines, "lines", ui.DefaultHexDumpLines, "Hex dump rows to print (0 prints all)")

	efsCmd.AddCommand(efsLsCmd)
	efsCmd.AddCommand(efsStatCmd)
	efsCmd.AddCommand(efsGetCmd)
	efsCmd.AddCommand(efsCatCmd)
	efsCmd.AddCommand(efsPutCmd)
	efsCmd.AddCommand(efsMkdirCmd)
	efsCmd.AddCommand(efsRmdirCmd)
	efsCmd.AddCommand(efsRmCmd)
	efsCmd.AddCommand(efsChmodCmd)
	efsCmd.AddCommand(efsChownCmd)
	efsCmd.AddCommand(efsDumpCmd)
	rootCmd.AddCommand(efsCmd)
}

var efsCmd = &cobra.Command{
	Use:   "efs",
	Short: "Work with the EFS2 filesystem",
	Long: `List, copy and change files on the modem's EFS2 filesystem.

The first command of a session detects which EFS2 command set the device
answers to (the alternate one is tried first).`,
}

// efsLsCmd implements the 'efs ls' command
var efsLsCmd = &cobra.Command{
	Use:   "ls <path>",
	Short: "List a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]
		return withSession(cmd, "EFS Listing", "qcdiag efs ls", []ui.Param{ui.P("Path", dir)}, func(ctx context.Context, s *session, p *ui.Printer) error {
			entries, err := s.efsBridge().ReadDir(ctx, dir)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					path.Join(dir, e.Name),
					efs.FileMode(e.Mode).String(),
					strconv.FormatUint(uint64(e.Size), 10),
					formatTime(e.Mtime),
					formatTime(e.Ctime),
				})
			}
			p.PrintTable([]string{"Path", "Mode", "Size", "Modified", "Changed"}, rows)
			p.Printf("%d entries\n", len(entries))
			return nil
		})
	},
}

// efsStatCmd implements the 'efs stat' command
var efsStatCmd = &cobra.Command{
	Use:   "stat <path>",
	Short: "Show file attributes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, "EFS Stat", "qcdiag efs stat", []ui.Param{ui.P("Path", args[0])}, func(ctx context.Context, s *session, p *ui.Printer) error {
			fi, err := s.efsBridge().Stat(ctx, args[0])
			if err != nil {
				return err
			}
			p.PrintSuccess(fi.Path,
				ui.P("Mode", fmt.Sprintf("%s (0x%X)", fi.FileMode(), fi.Mode)),
				ui.P("Size", strconv.FormatUint(uint64(fi.Size), 10)),
				ui.P("Links", strconv.FormatUint(uint64(fi.Nlink), 10)),
				ui.P("Accessed", formatTime(fi.Atime)),
				ui.P("Modified", formatTime(fi.Mtime)),
				ui.P("Changed", formatTime(fi.Ctime)))
			return nil
		})
	},
}

// efsGetCmd implements the 'efs get' command
var efsGetCmd = &cobra.Command{
	Use:     "get <src> <dstdir>",
	Short:   "Copy a file from the device",
	Example: `  qcdiag efs get /nv/item_files/modem/mmode/lte_bandpref ./backup`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, dstDir := args[0], args[1]
		return runTransfer(cmd, "EFS Download", "qcdiag efs get", ui.UnitBytes,
			[]ui.Param{ui.P("Source", src), ui.P("Destination", dstDir)},
			func(ctx context.Context, b *efs.Bridge, report ui.ReportFunc) ([]ui.Param, error) {
				n, err := b.CopyFromDevice(ctx, src, dstDir, efs.ProgressFunc(report))
				if err != nil {
					return nil, err
				}
				return []ui.Param{ui.P("File", dstDir+"/"+path.Base(src)), ui.P("Size", ui.FormatBytes(n))}, nil
			})
	},
}

// efsCatCmd implements the 'efs cat' command
var efsCatCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Dump a small file in a single request",
	Long: `Fetch a small file with one get request and print it as a hex dump.

Use 'qcdiag efs get' for files larger than one transfer.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, "EFS Get", "qcdiag efs cat", []ui.Param{ui.P("Path", args[0])}, func(ctx context.Context, s *session, p *ui.Printer) error {
			data, err := s.efsBridge().Get(ctx, args[0], catMax)
			if err != nil {
				return err
			}
			p.SetHexDumpLines(catLines).PrintHexDump(args[0], data)
			return nil
		})
	},
}

// efsPutCmd implements the 'efs put' command
var efsPutCmd = &cobra.Command{
	Use:   "put <local> <dst>",
	Short: "Copy a file to the device",
	Long: `Upload a local file to the device. The destination is created or
truncated with mode 0644.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, dst := args[0], args[1]
		return runTransfer(cmd, "EFS Upload", "qcdiag efs put", ui.UnitBytes,
			[]ui.Param{ui.P("Source", src), ui.P("Destination", dst)},
			func(ctx context.Context, b *efs.Bridge, report ui.ReportFunc) ([]ui.Param, error) {
				n, err := b.CopyToDevice(ctx, src, dst, efs.ProgressFunc(report))
				if err != nil {
					return nil, err
				}
				return []ui.Param{ui.P("File", dst), ui.P("Size", ui.FormatBytes(n))}, nil
			})
	},
}

// efsMkdirCmd implements the 'efs mkdir' command
var efsMkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := parseMode(mkdirMode)
		if err != nil {
			return err
		}
		return runEfsChange(cmd, "EFS Mkdir", "qcdiag efs mkdir", args[0], "Directory created", func(ctx context.Context, b *efs.Bridge) error {
			return b.Mkdir(ctx, args[0], mode)
		})
	},
}

// efsRmdirCmd implements the 'efs rmdir' command
var efsRmdirCmd = &cobra.Command{
	Use:   "rmdir <path>",
	Short: "Remove an empty directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEfsChange(cmd, "EFS Rmdir", "qcdiag efs rmdir", args[0], "Directory removed", func(ctx context.Context, b *efs.Bridge) error {
			return b.Rmdir(ctx, args[0])
		})
	},
}

// efsRmCmd implements the 'efs rm' command
var efsRmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Remove a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEfsChange(cmd, "EFS Remove", "qcdiag efs rm", args[0], "File removed", func(ctx context.Context, b *efs.Bridge) error {
			return b.Unlink(ctx, args[0])
		})
	},
}

// efsChmodCmd implements the 'efs chmod' command
var efsChmodCmd = &cobra.Command{
	Use:     "chmod <path> <mode>",
	Short:   "Change permissions",
	Example: `  qcdiag efs chmod /policyman/carrier_policy.xml 0644`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := parseMode(args[1])
		if err != nil {
			return err
		}
		return runEfsChange(cmd, "EFS Chmod", "qcdiag efs chmod", args[0], "Mode changed", func(ctx context.Context, b *efs.Bridge) error {
			return b.Chmod(ctx, args[0], mode)
		})
	},
}

// efsChownCmd implements the 'efs chown' command
var efsChownCmd = &cobra.Command{
	Use:   "chown <path> <uid> <gid>",
	Short: "Change owner and group",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		uid, err := strconv.ParseInt(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid uid %q", args[1])
		}
		gid, err := strconv.ParseInt(args[2], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid gid %q", args[2])
		}
		return runEfsChange(cmd, "EFS Chown", "qcdiag efs chown", args[0], "Owner changed", func(ctx context.Context, b *efs.Bridge) error {
			return b.Chown(ctx, args[0], int32(uid), int32(gid))
		})
	},
}

// efsDumpCmd implements the 'efs dump' command
var efsDumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "Export the factory image",
	Long: `Stream the EFS2 factory image into a local file.

The image starts with the factory header followed by the pages the header
announces. The device is told the export has ended even when it fails
part way through.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := args[0]
		return runTransfer(cmd, "Factory Image Export", "qcdiag efs dump", ui.UnitPages,
			[]ui.Param{ui.P("Output", out)},
			func(ctx context.Context, b *efs.Bridge, report ui.ReportFunc) ([]ui.Param, error) {
				f, err := os.Create(out)
				if err != nil {
					return nil, fmt.Errorf("failed to create %s: %w", out, err)
				}
				res, err := factimage.NewStreamer(b).Export(ctx, f, func(page, total int) {
					report(int64(page), int64(total))
				})
				if cerr := f.Close(); cerr != nil && err == nil {
					err = cerr
				}
				if err != nil {
					return nil, err
				}

				details := []ui.Param{
					ui.P("File", out),
					ui.P("Pages", strconv.Itoa(res.Pages)),
					ui.P("Size", ui.FormatBytes(res.Bytes)),
				}
				if res.Header != nil {
					details = append(details, ui.P("Header", res.Header.String()))
				}
				if res.EndOfStream {
					details = append(details, ui.P("Note", "device ended the stream early"))
				}
				return details, nil
			})
	},
}

// runTransfer runs a progress reporting EFS operation under a ui.Runner.
func runTransfer(cmd *cobra.Command, title, command string, unit ui.Unit, params []ui.Param,
	op func(ctx context.Context, b *efs.Bridge, report ui.ReportFunc) ([]ui.Param, error)) error {
	cmd.SilenceUsage = true
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	runner := ui.NewRunner(ui.RunnerConfig{
		Title:   title,
		Command: command,
		Params:  withTransport(cfg, params...),
		Unit:    unit,
		Output:  cmd.OutOrStdout(),
	})
	return runner.Run(cmd.Context(), func(ctx context.Context, report ui.ReportFunc) ([]ui.Param, error) {
		s, err := connect(cmd, cfg)
		if err != nil {
			return nil, err
		}
		defer s.Close()
		return op(ctx, s.efsBridge(), report)
	})
}

func runEfsChange(cmd *cobra.Command, title, command, target, done string, fn func(context.Context, *efs.Bridge) error) error {
	return withSession(cmd, title, command, []ui.Param{ui.P("Path", target)}, func(ctx context.Context, s *session, p *ui.Printer) error {
		if err := fn(ctx, s.efsBridge()); err != nil {
			return err
		}
		p.PrintSuccess(done, ui.P("Path", target))
		return nil
	})
}

func parseMode(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 8, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid mode %q: want octal, e.g. 0755", s)
	}
	return uint16(n), nil
}

func formatTime(sec uint32) string {
	if sec == 0 {
		return "-"
	}
	return time.Unix(int64(sec), 0).UTC().Format("2006-01-02 15:04:05")
}

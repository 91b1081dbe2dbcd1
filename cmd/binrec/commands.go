package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"code.cloudfoundry.org/bytefmt"
	"github.com/kjk/binrec/log"
	"github.com/kjk/binrec/mirror"
	"github.com/kjk/binrec/recfmt"
	"github.com/kjk/binrec/recstore"
	"github.com/kjk/binrec/stream"
	"github.com/olekukonko/tablewriter"
	"github.com/ricochet2200/go-disk-usage/du"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type app struct {
	vip *viper.Viper
	cfg Config
}

func (a *app) session() (session, *recstore.FileOptions, error) {
	s, err := newSession(a.cfg.Type, a.cfg.DataFormat)
	if err != nil {
		return nil, nil, err
	}
	fo, err := a.cfg.fileOptions()
	if err != nil {
		return nil, nil, err
	}
	return s, fo, nil
}

func newRootCmd() *cobra.Command {
	a := &app{vip: viper.New()}
	rootCmd := &cobra.Command{
		Use:     "binrec",
		Short:   "Write and read record files with an offset index",
		Version: Version,
		Long: `binrec writes values to a data file and the offset of every value to an
index file, and reads value N back by looking up its offset in the index.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(a.vip, cmd, &a.cfg)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			log.Close()
		},
	}
	setRootFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		a.writeCmd(),
		a.readCmd(),
		a.dumpCmd(),
		a.countCmd(),
		a.verifyCmd(),
		a.reindexCmd(),
		a.sizesCmd(),
		a.pushCmd(),
		a.pullCmd(),
		a.lsCmd(),
		a.rmCmd(),
	)
	return rootCmd
}

// execute runs the command line. A failure is logged, with a call stack,
// before the log files are closed.
func execute(args []string) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	err := cmd.Execute()
	log.IfErrf(err)
	log.Close()
	return err
}

func (a *app) writeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Write generated values as a data and index file pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, fo, err := a.session()
			if err != nil {
				return err
			}
			if !a.cfg.SkipSpaceCheck {
				if err = checkSpace(fo, s.width(), a.cfg.Count); err != nil {
					return err
				}
			}
			n, err := s.write(fo, a.cfg.Gen, a.cfg.Count)
			if err != nil {
				return err
			}
			st, err := os.Stat(fo.DataPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d records to %s (%s)\n", n, fo.DataPath, bytefmt.ByteSize(uint64(st.Size())))
			return nil
		},
	}
	flags := cmd.Flags()
	flags.Int("count", 10, "Number of values")
	flags.String("gen", "seq", "Values: seq (0, 1, 2...) or sqrt (sqrt(i)/i, floats only)")
	flags.Int("buffer", recstore.DefaultBufferSize, "Write buffer size in bytes")
	flags.Int("flush-every", 0, "Also flush every N records, 0 to only flush when the buffer is full")
	flags.Bool("manifest", false, "Write <data>.manifest.json")
	flags.Bool("append", false, "Append to existing uncompressed files")
	flags.Bool("sync", false, "fsync after every flush")
	flags.Bool("skip-space-check", false, "Don't check for free disk space before writing")
	return cmd
}

// checkSpace fails if uncompressed fixed-width records won't fit on disk.
// Text and compressed sizes aren't known up front and aren't checked.
func checkSpace(fo *recstore.FileOptions, width int, count int) error {
	if width == 0 || stream.CodecForPath(fo.DataPath) != stream.None {
		return nil
	}
	required := uint64(width) * uint64(count)
	if fo.Index != nil && fo.Index.Width() > 0 {
		required += uint64(fo.Index.Width()) * uint64(count)
	}
	available := du.NewDiskUsage(filepath.Dir(fo.DataPath)).Available()
	if required > available {
		return fmt.Errorf("not enough disk space. required: %v, available: %v",
			bytefmt.ByteSize(required), bytefmt.ByteSize(available))
	}
	return nil
}

func (a *app) readCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read N...",
		Short: "Print records N (zero-based)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, fo, err := a.session()
			if err != nil {
				return err
			}
			for _, arg := range args {
				n, err := strconv.Atoi(arg)
				if err != nil {
					return fmt.Errorf("'%s' is not a record number", arg)
				}
				v, err := s.read(fo, n)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
			}
			return nil
		},
	}
}

func (a *app) dumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print all records with their numbers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, fo, err := a.session()
			if err != nil {
				return err
			}
			_, err = s.dump(fo, cmd.OutOrStdout())
			return err
		},
	}
}

func (a *app) countCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of records in the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, fo, err := a.session()
			if err != nil {
				return err
			}
			n, err := s.count(fo)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func (a *app) verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that index and data describe the same records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, fo, err := a.session()
			if err != nil {
				return err
			}
			n, err := s.verify(fo)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok, %d records\n", n)
			return nil
		},
	}
	cmd.Flags().Bool("manifest", false, "Fail if there's no manifest")
	return cmd
}

func (a *app) reindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Recreate the index file from the data file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, fo, err := a.session()
			if err != nil {
				return err
			}
			n, err := s.reindex(fo)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d records\n", n)
			return nil
		},
	}
}

// sizes writes 0..126 as int8 and as int32 and compares file sizes
func (a *app) sizesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sizes",
		Short: "Compare data file sizes of the same integers stored as int8 and int32",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.Dir
			size8, err := writeSeq(filepath.Join(dir, "int8.bin"), recfmt.Binary[int8]{}, 127)
			if err != nil {
				return err
			}
			size32, err := writeSeq(filepath.Join(dir, "int32.bin"), recfmt.Binary[int32]{}, 127)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			table := tablewriter.NewWriter(out)
			table.SetHeader([]string{"type", "records", "bytes", "size"})
			table.SetBorder(true)
			table.AppendBulk([][]string{
				{"int8", "127", strconv.FormatInt(size8, 10), bytefmt.ByteSize(uint64(size8))},
				{"int32", "127", strconv.FormatInt(size32, 10), bytefmt.ByteSize(uint64(size32))},
			})
			table.Render()
			fmt.Fprintf(out, "ratio: %.1f\n", float64(size32)/float64(size8))
			return nil
		},
	}
	cmd.Flags().String("dir", ".", "Directory for int8.bin and int32.bin")
	return cmd
}

// writeSeq writes 0..count-1 to path and returns the size of the data
func writeSeq[V recfmt.Number](path string, enc recfmt.Encoding[V], count int) (int64, error) {
	values, err := generate[V]("seq", count)
	if err != nil {
		return 0, err
	}
	fw, err := recstore.Create(&recstore.FileOptions{DataPath: path}, enc)
	if err != nil {
		return 0, err
	}
	for v := range values {
		if err = fw.Append(v); err != nil {
			fw.Abort()
			return 0, err
		}
	}
	if err = fw.Close(); err != nil {
		return 0, err
	}
	return fw.Offset(), nil
}

func (a *app) pushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Upload the file pair to S3-compatible storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fo, err := a.cfg.fileOptions()
			if err != nil {
				return err
			}
			ctx := context.Background()
			c, err := a.mirrorClient()
			if err != nil {
				return err
			}
			if err = c.UploadPair(ctx, a.cfg.Prefix, fo); err != nil {
				return err
			}
			remoteData, remoteIndex := mirror.RemotePaths(a.cfg.Prefix, fo)
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s, %s\n", remoteData, remoteIndex)
			return nil
		},
	}
	setMirrorFlags(cmd.Flags())
	return cmd
}

func (a *app) pullCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Download the file pair from S3-compatible storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fo, err := a.cfg.fileOptions()
			if err != nil {
				return err
			}
			ctx := context.Background()
			c, err := a.mirrorClient()
			if err != nil {
				return err
			}
			if err = c.DownloadPair(ctx, a.cfg.Prefix, fo); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "downloaded %s\n", fo.DataPath)
			return nil
		},
	}
	setMirrorFlags(cmd.Flags())
	return cmd
}

func (a *app) mirrorClient() (*mirror.Client, error) {
	return mirror.New(context.Background(), a.cfg.mirrorConfig())
}

func (a *app) lsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List remote files under --prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.mirrorClient()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for obj := range c.ListObjects(context.Background(), a.cfg.Prefix) {
				if obj.Err != nil {
					return obj.Err
				}
				fmt.Fprintf(out, "%s\t%s\n", obj.Key, bytefmt.ByteSize(uint64(obj.Size)))
			}
			return nil
		},
	}
	setMirrorFlags(cmd.Flags())
	return cmd
}

func (a *app) rmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm",
		Short: "Remove the remote file pair and its manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fo, err := a.cfg.fileOptions()
			if err != nil {
				return err
			}
			c, err := a.mirrorClient()
			if err != nil {
				return err
			}
			if err = c.RemovePair(context.Background(), a.cfg.Prefix, fo); err != nil {
				return err
			}
			remoteData, remoteIndex := mirror.RemotePaths(a.cfg.Prefix, fo)
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s, %s\n", remoteData, remoteIndex)
			return nil
		},
	}
	setMirrorFlags(cmd.Flags())
	return cmd
}

// Command ctfdump is a thin diagnostic CLI over this module's decoder
// core: the one concrete "sink" this repo implements, generalizing the
// teacher's cmd/dump (aclements/go-perf) from a fixed perf.data layout
// to an open-ended CTF trace class graph. Since the TSDL lexer/parser
// that would normally build that graph from textual metadata is out of
// scope (metadata/ast only fixes the contract its output must take),
// ctfdump takes its trace-class description from a small JSON layout
// file instead (see layout.go), or falls back to a built-in
// LTTng-shaped default for a quick look at an unannotated capture.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tracefmt/ctf/medium"
	"github.com/tracefmt/ctf/msgiter"
)

var (
	flagLayout  string
	flagVerbose bool
	flagLimit   int
)

var rootCmd = &cobra.Command{
	Use:   "ctfdump <trace-stream-file>",
	Short: "Decode a CTF binary trace stream and print its message sequence",
	Long: `ctfdump drives this module's message iterator over a single CTF
stream file and prints the resulting stream_beginning/packet_beginning/
event/discarded_events/packet_end/stream_end sequence in order.

It does not parse TSDL metadata files; pass --layout with a JSON
description of the stream's field layout, or omit it to use a built-in
LTTng-kernel-shaped default.`,
	Args: cobra.ExactArgs(1),
	RunE: runDump,
}

func init() {
	rootCmd.Flags().StringVar(&flagLayout, "layout", "", "path to a JSON trace-class layout file (default: built-in layout)")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "log decoder diagnostics to stderr")
	rootCmd.Flags().IntVar(&flagLimit, "limit", 0, "stop after this many messages (0: unlimited)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDump(cmd *cobra.Command, args []string) error {
	layout := defaultLayout()
	if flagLayout != "" {
		var err error
		layout, err = loadLayout(flagLayout)
		if err != nil {
			return err
		}
	}
	tc, err := buildTraceClass(layout)
	if err != nil {
		return err
	}

	f, err := medium.OpenFile(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	it := msgiter.New(tc, f)
	if flagVerbose {
		it.Logger = logrus.NewEntry(logrus.StandardLogger())
		it.Logger.Logger.SetLevel(logrus.DebugLevel)
	}

	out := cmd.OutOrStdout()
	printed := 0
	for {
		msgs, status, err := it.Next(32)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			printMessage(out, m)
			printed++
			if flagLimit > 0 && printed >= flagLimit {
				return nil
			}
		}
		switch status {
		case msgiter.StatusEnd:
			return nil
		case msgiter.StatusError:
			return fmt.Errorf("decoding stopped: %v", status)
		}
	}
}

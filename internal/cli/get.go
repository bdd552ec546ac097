package cli

import (
	"fmt"

	"github.com/harun/recall/pkg/memory"
	"github.com/spf13/cobra"
)

var (
	getFrom  int
	getLines int
)

var getCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Print lines from a memory file",
	Long: `Print a memory file, or a window of it, by its workspace-relative path,
e.g. "recall get memory/2026-02-27.md --from 10 --lines 5".`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func init() {
	getCmd.Flags().IntVar(&getFrom, "from", 1, "first line to print (1-based)")
	getCmd.Flags().IntVar(&getLines, "lines", 0, "number of lines to print (0 prints to the end)")
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	s, err := openSession(false)
	if err != nil {
		return err
	}
	defer s.Close()

	slice, err := memory.MemoryGet(commandContext(cmd), s.manager, memory.MemoryGetParams{
		Path:  args[0],
		From:  getFrom,
		Lines: getLines,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), slice.Text)
	if slice.Truncated {
		fmt.Fprintf(cmd.ErrOrStderr(), "(more lines follow line %d)\n", slice.To)
	}
	return nil
}

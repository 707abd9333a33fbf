package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/atinylittleshell/gojacp/internal/core"
	"github.com/atinylittleshell/gojacp/internal/history"
	"github.com/atinylittleshell/gojacp/internal/styles"
)

var (
	historySessionFlag string
	historyLimitFlag   int
	historySearchFlag  string
	historyDeleteFlag  uint
	historyResetFlag   bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent script invocations",
	Long: `Lists the scripts this agent has run, newest last, with their stop reason
and duration. Both ACP prompt turns and playground runs are recorded; the
playground uses the session id "repl".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistory()
	},
}

func init() {
	historyCmd.Flags().StringVar(&historySessionFlag, "session", "", "only show invocations from this session")
	historyCmd.Flags().IntVarP(&historyLimitFlag, "limit", "n", 20, "number of invocations to show")
	historyCmd.Flags().StringVar(&historySearchFlag, "search", "", "only show invocations whose script contains this text")
	historyCmd.Flags().UintVar(&historyDeleteFlag, "delete", 0, "delete the invocation with this id")
	historyCmd.Flags().BoolVar(&historyResetFlag, "reset", false, "delete all recorded invocations")
}

func runHistory() error {
	manager, err := history.NewHistoryManager(core.HistoryFile())
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}

	if historyResetFlag {
		if err := manager.ResetHistory(); err != nil {
			return err
		}
		fmt.Println("history cleared")
		return nil
	}

	if historyDeleteFlag != 0 {
		if err := manager.DeleteEntry(historyDeleteFlag); err != nil {
			return err
		}
		fmt.Printf("deleted invocation %d\n", historyDeleteFlag)
		return nil
	}

	var entries []history.InvocationEntry
	if historySearchFlag != "" {
		entries, err = manager.SearchInvocations(historySearchFlag, historyLimitFlag)
	} else {
		entries, err = manager.GetRecentEntries(historySessionFlag, historyLimitFlag)
	}
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("no invocations recorded")
		return nil
	}

	for _, entry := range entries {
		printInvocation(entry)
	}
	return nil
}

func printInvocation(entry history.InvocationEntry) {
	header := fmt.Sprintf("#%d  %s  session=%s", entry.ID, humanize.Time(entry.CreatedAt), entry.SessionID)
	if entry.DurationMS.Valid {
		header += "  " + (time.Duration(entry.DurationMS.Int64) * time.Millisecond).String()
	}

	switch {
	case entry.ErrorKind != "":
		detail := entry.ErrorKind
		if entry.ErrorDetail != "" {
			detail += ": " + entry.ErrorDetail
		}
		header += "  " + styles.ERROR(detail)
	case entry.StopReason != "":
		header += "  " + entry.StopReason
	default:
		header += "  running"
	}

	fmt.Println(header)
	for _, line := range strings.Split(entry.Script, "\n") {
		fmt.Println(styles.SCRIPT_OUTPUT("    " + line))
	}
}

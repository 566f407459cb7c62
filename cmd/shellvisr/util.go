package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/loykin/shellvisr/pkg/client"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func formatUnix(ts float64) string {
	if ts <= 0 {
		return "-"
	}
	return time.Unix(int64(ts), 0).Format(time.RFC3339)
}

func formatExit(code *int) string {
	if code == nil {
		return "-"
	}
	if *code < 0 {
		return fmt.Sprintf("signal %d", -*code)
	}
	return fmt.Sprintf("%d", *code)
}

func printShell(w io.Writer, sh *client.Shell) {
	fmt.Fprintf(w, "id:        %s\n", sh.ID)
	fmt.Fprintf(w, "command:   %s\n", strings.Join(sh.Command, " "))
	if sh.Label != "" {
		fmt.Fprintf(w, "label:     %s\n", sh.Label)
	}
	fmt.Fprintf(w, "status:    %s", sh.Status)
	if sh.Adopted {
		fmt.Fprint(w, " (adopted)")
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "pid:       %d\n", sh.PID)
	fmt.Fprintf(w, "pty:       %v\n", sh.UsesPTY)
	fmt.Fprintf(w, "cwd:       %s\n", sh.Cwd)
	fmt.Fprintf(w, "created:   %s\n", formatUnix(sh.CreatedAt))
	fmt.Fprintf(w, "exit code: %s\n", formatExit(sh.ExitCode))
	if len(sh.EnvKeys) > 0 {
		fmt.Fprintf(w, "env keys:  %s\n", strings.Join(sh.EnvKeys, ", "))
	}
	if sh.Stats.Alive {
		fmt.Fprintf(w, "uptime:    %s\n", (time.Duration(sh.Stats.UptimeSec) * time.Second).String())
		if sh.Stats.CPUPercent != nil {
			fmt.Fprintf(w, "cpu:       %.1f%%\n", *sh.Stats.CPUPercent)
		}
		if sh.Stats.MemoryRSS != nil {
			fmt.Fprintf(w, "rss:       %.1f MiB\n", float64(*sh.Stats.MemoryRSS)/(1024*1024))
		}
	}
	if sh.Logs != nil {
		if sh.Logs.StdoutTail != "" {
			fmt.Fprintf(w, "--- stdout ---\n%s\n", sh.Logs.StdoutTail)
		}
		if sh.Logs.StderrTail != "" {
			fmt.Fprintf(w, "--- stderr ---\n%s\n", sh.Logs.StderrTail)
		}
	}
}

func printShellTable(w io.Writer, shells []client.Shell) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPID\tPTY\tLABEL\tEXIT\tCOMMAND")
	for i := range shells {
		sh := &shells[i]
		cmdStr := strings.Join(sh.Command, " ")
		if len(cmdStr) > 48 {
			cmdStr = cmdStr[:45] + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%v\t%s\t%s\t%s\n",
			sh.ID, sh.Status, sh.PID, sh.UsesPTY, sh.Label, formatExit(sh.ExitCode), cmdStr)
	}
	_ = tw.Flush()
}

func printAggregate(w io.Writer, agg *client.Aggregate) {
	fmt.Fprintf(w, "run id:     %s\n", agg.RunID)
	fmt.Fprintf(w, "launcher:   pid %d, up %s\n", agg.LauncherPID,
		(time.Duration(agg.UptimeSec) * time.Second).String())
	fmt.Fprintf(w, "shells:     %d total, %d running, %d adopted\n",
		agg.TotalShells, agg.Running, agg.Adopted)
	if len(agg.PIDs) > 0 {
		pids := make([]string, len(agg.PIDs))
		for i, p := range agg.PIDs {
			pids[i] = fmt.Sprintf("%d", p)
		}
		fmt.Fprintf(w, "pids:       %s\n", strings.Join(pids, ", "))
	}
	if agg.TotalCPU != nil {
		fmt.Fprintf(w, "cpu:        %.1f%%\n", *agg.TotalCPU)
	}
	if agg.TotalMemoryRSS != nil {
		fmt.Fprintf(w, "rss:        %.1f MiB\n", float64(*agg.TotalMemoryRSS)/(1024*1024))
	}
	fmt.Fprintf(w, "prober:     %s\n", agg.Prober)
}

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/shellvisr/pkg/client"
)

func apiClient(f *APIFlags) *client.Client {
	return client.New(client.Config{BaseURL: f.URL, APIKey: f.Key, Timeout: f.Timeout})
}

func createSpawnCommand(api *APIFlags) *cobra.Command {
	f := &SpawnFlags{}
	cmd := &cobra.Command{
		Use:   "spawn -- command [args...]",
		Short: "Spawn a shell on the daemon",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := make(map[string]string, len(f.Env))
			for _, kv := range f.Env {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("malformed --env %q, want K=V", kv)
				}
				env[k] = v
			}
			sh, err := apiClient(api).Spawn(context.Background(), client.SpawnRequest{
				Command:   args,
				Cwd:       f.Cwd,
				Env:       env,
				Label:     f.Label,
				Autostart: f.Autostart,
				PTY:       f.PTY,
				Cols:      f.Cols,
				Rows:      f.Rows,
			})
			if err != nil {
				return err
			}
			printShell(cmd.OutOrStdout(), sh)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.Cwd, "cwd", "", "working directory (under the sandbox root)")
	cmd.Flags().StringArrayVar(&f.Env, "env", nil, "extra environment, K=V (repeatable)")
	cmd.Flags().StringVar(&f.Label, "label", "", "grouping label")
	cmd.Flags().BoolVar(&f.Autostart, "autostart", false, "mark for autostart")
	cmd.Flags().BoolVar(&f.PTY, "pty", false, "attach a pseudo-terminal")
	cmd.Flags().Uint16Var(&f.Cols, "cols", 0, "initial terminal columns (pty)")
	cmd.Flags().Uint16Var(&f.Rows, "rows", 0, "initial terminal rows (pty)")
	return cmd
}

func createListCommand(api *APIFlags) *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List shells",
		RunE: func(cmd *cobra.Command, args []string) error {
			shells, err := apiClient(api).List(context.Background(), label)
			if err != nil {
				return err
			}
			printShellTable(cmd.OutOrStdout(), shells)
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "only shells with this label")
	return cmd
}

func createGetCommand(api *APIFlags) *cobra.Command {
	f := &GetFlags{}
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one shell",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tail := 0
			if f.Logs {
				tail = f.TailLines
				if tail <= 0 {
					tail = 200
				}
			}
			sh, err := apiClient(api).Get(context.Background(), args[0], tail)
			if err != nil {
				return err
			}
			printShell(cmd.OutOrStdout(), sh)
			return nil
		},
	}
	cmd.Flags().BoolVar(&f.Logs, "logs", false, "include log tails")
	cmd.Flags().IntVar(&f.TailLines, "tail-lines", 0, "number of tail lines (with --logs)")
	return cmd
}

func createStopCommand(api *APIFlags) *cobra.Command {
	f := &StopFlags{}
	cmd := &cobra.Command{
		Use:   "stop <id>",
		Short: "Stop a shell (graceful, then SIGKILL)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := apiClient(api)
			var sh *client.Shell
			var err error
			if f.Force {
				sh, err = c.Kill(context.Background(), args[0])
			} else {
				sh, err = c.Stop(context.Background(), args[0], f.Timeout)
			}
			if err != nil {
				return err
			}
			printShell(cmd.OutOrStdout(), sh)
			return nil
		},
	}
	cmd.Flags().BoolVar(&f.Force, "force", false, "SIGKILL immediately")
	cmd.Flags().DurationVar(&f.Timeout, "timeout", 10*time.Second, "graceful wait before escalation")
	return cmd
}

func createRestartCommand(api *APIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <id>",
		Short: "Restart a shell with the same command and mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sh, err := apiClient(api).Restart(context.Background(), args[0])
			if err != nil {
				return err
			}
			printShell(cmd.OutOrStdout(), sh)
			return nil
		},
	}
}

func createRemoveCommand(api *APIFlags) *cobra.Command {
	f := &RemoveFlags{}
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Terminate a shell and delete its metadata and logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient(api).Remove(context.Background(), args[0], f.Force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&f.Force, "force", false, "SIGKILL instead of graceful stop")
	return cmd
}

func createStatsCommand(api *APIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate supervisor statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			agg, err := apiClient(api).Stats(context.Background())
			if err != nil {
				return err
			}
			printAggregate(cmd.OutOrStdout(), agg)
			return nil
		},
	}
}

func createAttachCommand(api *APIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <id>",
		Short: "Stream live output of an interactive shell (Ctrl-C detaches)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			return apiClient(api).Stream(ctx, args[0], func(chunk string) {
				_, _ = os.Stdout.WriteString(chunk)
			})
		},
	}
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"laraops/internal/core"

	"github.com/spf13/cobra"
)

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage scheduled tasks",
	}
	cmd.AddCommand(scheduleAddCmd())
	cmd.AddCommand(scheduleListCmd())
	cmd.AddCommand(scheduleRemoveCmd())
	cmd.AddCommand(scheduleEnableCmd())
	cmd.AddCommand(scheduleDisableCmd())
	cmd.AddCommand(scheduleRunCmd())
	cmd.AddCommand(scheduleNextCmd())
	cmd.AddCommand(scheduleSyncCmd())
	cmd.AddCommand(scheduleRunsCmd())
	return cmd
}

func scheduleAddCmd() *cobra.Command {
	var (
		id          string
		name        string
		command     string
		cronExpr    string
		description string
		workDir     string
		outputFile  string
		errorFile   string
		disabled    bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a scheduled task",
		Run: func(cmd *cobra.Command, args []string) {
			if id == "" {
				if name == "" {
					fail(errors.New("either --id or --name is required"))
				}
				id = core.GenerateTaskID(name)
			}

			task, err := core.NewTask(id, command, cronExpr)
			if err != nil {
				fail(err)
			}
			if description != "" {
				task.SetDescription(description)
			}
			if workDir != "" {
				task.SetWorkingDirectory(&workDir)
			}
			if outputFile != "" {
				task.SetOutputFile(&outputFile)
			}
			if errorFile != "" {
				task.SetErrorFile(&errorFile)
			}
			if disabled {
				task.Disable()
			}

			a := mustApp(cmd.Context())
			defer a.close()
			if err := a.scheduler.AddTask(task); err != nil {
				fail(err)
			}

			fmt.Printf("Added task %s\n", task.ID())
			if at, err := task.CronExpression().NextRunDate(time.Now()); err == nil {
				fmt.Printf("Next run: %s\n", at.Format(time.DateTime))
			}
			fmt.Println("Run 'laraops schedule sync' to install it into the system crontab.")
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "task id (lowercase letters, digits and dashes)")
	cmd.Flags().StringVar(&name, "name", "", "human name; the id is derived from it when --id is not given")
	cmd.Flags().StringVar(&command, "command", "", "shell command to run (required)")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "cron expression, e.g. '0 3 * * *' (required)")
	cmd.Flags().StringVar(&description, "description", "", "free-form description")
	cmd.Flags().StringVar(&workDir, "workdir", "", "directory the command runs in")
	cmd.Flags().StringVar(&outputFile, "output", "", "file receiving stdout for crontab-driven runs")
	cmd.Flags().StringVar(&errorFile, "error", "", "file receiving stderr for crontab-driven runs")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "create the task disabled")
	_ = cmd.MarkFlagRequired("command")
	_ = cmd.MarkFlagRequired("cron")
	return cmd
}

func scheduleListCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled tasks",
		Run: func(cmd *cobra.Command, args []string) {
			a := mustApp(cmd.Context())
			defer a.close()
			printTasks(a.tasks.All(), jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func scheduleRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [taskId]",
		Short: "Remove a task",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			a := mustApp(cmd.Context())
			defer a.close()
			if err := a.scheduler.RemoveTask(args[0]); err != nil {
				fail(err)
			}
			fmt.Printf("Removed task %s\n", args[0])
			fmt.Println("Run 'laraops schedule sync' to update the system crontab.")
		},
	}
}

func scheduleEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable [taskId]",
		Short: "Enable a task",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			a := mustApp(cmd.Context())
			defer a.close()
			if err := a.scheduler.EnableTask(args[0]); err != nil {
				fail(err)
			}
			fmt.Printf("Task %s enabled\n", args[0])
			fmt.Println("Run 'laraops schedule sync' to update the system crontab.")
		},
	}
}

func scheduleDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable [taskId]",
		Short: "Disable a task",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			a := mustApp(cmd.Context())
			defer a.close()
			if err := a.scheduler.DisableTask(args[0]); err != nil {
				fail(err)
			}
			fmt.Printf("Task %s disabled\n", args[0])
			fmt.Println("Run 'laraops schedule sync' to update the system crontab.")
		},
	}
}

func scheduleRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [taskId]",
		Short: "Run a task now and exit with its exit code",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			a := mustApp(cmd.Context())
			code, err := a.scheduler.RunTask(cmd.Context(), args[0])
			a.close()
			if err != nil {
				fail(err)
			}
			if code != 0 {
				os.Exit(code)
			}
		},
	}
}

func scheduleNextCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "next [taskId]",
		Short: "Show when a task will fire next",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			a := mustApp(cmd.Context())
			defer a.close()
			task, ok := a.tasks.Find(args[0])
			if !ok {
				fail(fmt.Errorf("task not found: %s", args[0]))
			}
			if count < 1 {
				count = 1
			}
			times, err := task.CronExpression().NextOccurrences(time.Now(), count)
			if err != nil {
				fail(err)
			}
			for i, at := range times {
				fmt.Printf("%d. %s\n", i+1, at.Format(time.DateTime))
			}
		},
	}
	cmd.Flags().IntVar(&count, "count", 5, "number of occurrences to show")
	return cmd
}

func scheduleSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Install enabled tasks into the system crontab",
		Run: func(cmd *cobra.Command, args []string) {
			a := mustApp(cmd.Context())
			defer a.close()
			if err := a.scheduler.SyncToSystemCrontab(); err != nil {
				fail(err)
			}
			fmt.Printf("System crontab updated (%d enabled tasks)\n", len(a.tasks.EnabledTasks()))
		},
	}
}

func scheduleRunsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs [taskId]",
		Short: "Show run history, optionally for one task",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			a := mustApp(cmd.Context())
			defer a.close()
			if a.runs == nil {
				fail(errors.New("run history is not available"))
			}
			taskID := ""
			if len(args) == 1 {
				taskID = args[0]
			}
			if limit <= 0 {
				limit = a.cfg.RunKeep
			}
			runs, err := a.runs.ListRuns(cmd.Context(), taskID, limit)
			if err != nil {
				fail(err)
			}
			printRuns(runs)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum runs to show (default from config)")
	return cmd
}

// --- Shared display ---

type taskJSON struct {
	ID          string  `json:"id"`
	Command     string  `json:"command"`
	Cron        string  `json:"cron"`
	Description string  `json:"description,omitempty"`
	Enabled     bool    `json:"enabled"`
	WorkingDir  *string `json:"working_directory,omitempty"`
	OutputFile  *string `json:"output_file,omitempty"`
	ErrorFile   *string `json:"error_file,omitempty"`
	NextRunAt   *string `json:"next_run_at,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

func printTasks(tasks []*core.Task, jsonOutput bool) {
	if jsonOutput {
		items := make([]taskJSON, 0, len(tasks))
		for _, t := range tasks {
			item := taskJSON{
				ID:          t.ID(),
				Command:     t.Command(),
				Cron:        t.CronExpression().String(),
				Description: t.Description(),
				Enabled:     t.Enabled(),
				WorkingDir:  t.WorkingDirectory(),
				OutputFile:  t.OutputFile(),
				ErrorFile:   t.ErrorFile(),
				CreatedAt:   t.CreatedAt().Format(time.RFC3339),
			}
			if at, err := t.CronExpression().NextRunDate(time.Now()); err == nil {
				formatted := at.Format(time.RFC3339)
				item.NextRunAt = &formatted
			}
			items = append(items, item)
		}
		data, _ := json.MarshalIndent(items, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(tasks) == 0 {
		fmt.Println("No tasks configured.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tENABLED\tSCHEDULE\tNEXT RUN\tCOMMAND\n")
	for _, t := range tasks {
		next := "never"
		if at, err := t.CronExpression().NextRunDate(time.Now()); err == nil {
			next = at.Format(time.DateTime)
		}
		command := t.Command()
		if len(command) > 40 {
			command = command[:37] + "..."
		}
		fmt.Fprintf(tw, "%s\t%v\t%s\t%s\t%s\n",
			t.ID(), t.Enabled(), t.CronExpression().String(), next, command)
	}
	tw.Flush()
}

func printRuns(runs []*core.Run) {
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "RUN\tTASK\tSTATUS\tSTARTED\tDURATION\tEXIT\n")
	for _, r := range runs {
		started := "-"
		duration := "-"
		if r.StartedAt != nil {
			started = r.StartedAt.Local().Format(time.DateTime)
			if r.EndedAt != nil {
				duration = r.EndedAt.Sub(*r.StartedAt).Round(time.Millisecond).String()
			}
		}
		exit := "-"
		if r.ExitCode != nil {
			exit = fmt.Sprintf("%d", *r.ExitCode)
		}
		idShort := r.ID
		if len(idShort) > 8 {
			idShort = idShort[:8]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			idShort, r.TaskID, r.Status, started, duration, exit)
	}
	tw.Flush()
}

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/supremeagent/promptrunner/internal/config"
	"github.com/supremeagent/promptrunner/internal/models"
	"github.com/supremeagent/promptrunner/internal/schedule"
)

var (
	flagSchedDate       string
	flagSchedTime       string
	flagSchedCategory   string
	flagSchedRecurrence string
	flagSchedDue        string
	flagSchedCommand    string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage scheduled commands",
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add <command...>",
	Short: "Schedule a command",
	Args:  cobra.ArbitraryArgs,
	RunE:  runScheduleAdd,
}

var scheduleListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List scheduled commands",
	Args:    cobra.NoArgs,
	RunE:    runScheduleList,
}

var scheduleEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit a scheduled command",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleEdit,
}

var scheduleDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a scheduled command",
	Args:    cobra.ExactArgs(1),
	RunE:    runScheduleDelete,
}

func init() {
	for _, c := range []*cobra.Command{scheduleAddCmd, scheduleEditCmd} {
		c.Flags().StringVar(&flagSchedDate, "date", "", "Date (YYYY-MM-DD)")
		c.Flags().StringVar(&flagSchedTime, "time", "", "Time (hh:mm)")
		c.Flags().StringVar(&flagSchedCategory, "category", "", "Category (Work, Personal, Other)")
		c.Flags().StringVar(&flagSchedRecurrence, "recurrence", "", "Recurrence (none, daily, weekly, monthly)")
		c.Flags().StringVar(&flagSchedDue, "due", "", "Due date (YYYY-MM-DD)")
	}
	scheduleEditCmd.Flags().StringVar(&flagSchedCommand, "command", "", "New command text")

	scheduleCmd.AddCommand(scheduleAddCmd)
	scheduleCmd.AddCommand(scheduleDeleteCmd)
	scheduleCmd.AddCommand(scheduleEditCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
}

func newScheduleManager() (*schedule.Manager, *models.Settings, error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, nil, err
	}
	client, err := newClient(settings)
	if err != nil {
		return nil, nil, err
	}
	mgr, err := schedule.NewManager(schedule.Options{
		Submitter: client,
		UserID:    settings.Schedule.UserID,
		UTCOffset: settings.Schedule.UTCOffset,
	})
	return mgr, settings, err
}

func runScheduleAdd(cmd *cobra.Command, args []string) error {
	mgr, settings, err := newScheduleManager()
	if err != nil {
		return err
	}
	category := flagSchedCategory
	if category == "" {
		category = settings.Schedule.Category
	}
	task, err := mgr.Add(cmd.Context(), schedule.AddRequest{
		Command:    strings.Join(args, " "),
		Date:       flagSchedDate,
		Time:       flagSchedTime,
		Category:   category,
		Recurrence: flagSchedRecurrence,
		DueDate:    flagSchedDue,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", styleSuccess.Render("Scheduled"), task.ID)
	if task.Status == models.TaskStatusLocal {
		fmt.Fprintln(out, styleWarning.Render("The scheduler did not accept the task; it is kept locally only."))
	}
	return nil
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	mgr, _, err := newScheduleManager()
	if err != nil {
		return err
	}
	tasks, err := mgr.List()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No scheduled commands. Run 'promptrunner schedule add' to create one.")
		return nil
	}
	for _, t := range tasks {
		badge := badgeScheduled.Render(t.Status)
		if t.Status == models.TaskStatusLocal {
			badge = badgeLocal.Render(t.Status)
		}
		line := fmt.Sprintf("  %s  %s  %-9s %s  %s",
			styleLabel.Render(t.ID),
			t.ScheduleAt.Format("2006-01-02 15:04 -07:00"),
			badge,
			styleHint.Render("["+t.Category+"]"),
			t.Command,
		)
		if t.Recurrence != "" && t.Recurrence != models.RecurrenceNone {
			line += styleHint.Render(" (" + t.Recurrence + ")")
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func runScheduleEdit(cmd *cobra.Command, args []string) error {
	mgr, _, err := newScheduleManager()
	if err != nil {
		return err
	}
	task, err := mgr.Edit(args[0], schedule.EditRequest{
		Command:    flagSchedCommand,
		Date:       flagSchedDate,
		Time:       flagSchedTime,
		Category:   flagSchedCategory,
		Recurrence: flagSchedRecurrence,
		DueDate:    flagSchedDue,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", styleSuccess.Render("Updated"), task.ID)
	return nil
}

func runScheduleDelete(cmd *cobra.Command, args []string) error {
	mgr, _, err := newScheduleManager()
	if err != nil {
		return err
	}
	task, err := mgr.Remove(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", styleSuccess.Render("Deleted"), task.ID, styleHint.Render(task.Command))
	return nil
}

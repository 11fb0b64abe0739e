package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/kalambet/pulse/internal/config"
	"github.com/kalambet/pulse/internal/gateway"
	"github.com/kalambet/pulse/internal/journal"
)

// --- log ---

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Log or update a daily check-in",
	Long: `Log or update a daily check-in. Fields not given keep their stored value.

Examples:
  pulse log --mood 4 --energy 3
  pulse log --highlight "Long walk by the river" --gratitude "Sunny weather"
  pulse log --date 2024-03-14 --mood 2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		if date == "" {
			date = journal.LocalDate(time.Now())
		}
		if !journal.ValidDate(date) {
			return fmt.Errorf("date %q must be YYYY-MM-DD", date)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		entry, err := logEntry(cmd.Context(), client, date, cmd.Flags().Changed, func(name string) (any, error) {
			switch name {
			case "mood", "energy":
				return cmd.Flags().GetFloat64(name)
			default:
				return cmd.Flags().GetString(name)
			}
		})
		if err != nil {
			return err
		}

		printSuccess("Logged %s", entry.Date)
		printEntry(entry)
		return nil
	},
}

func init() {
	logCmd.Flags().String("date", "", "day to log, YYYY-MM-DD (default today)")
	logCmd.Flags().Float64("mood", 0, "mood rating")
	logCmd.Flags().Float64("energy", 0, "energy rating")
	logCmd.Flags().String("highlight", "", "highlight of the day")
	logCmd.Flags().String("gratitude", "", "something to be grateful for")
}

// logEntry reads the stored entry for date, overlays the fields the user
// set and upserts the result.
func logEntry(ctx context.Context, client *apiClient, date string, changed func(string) bool, value func(string) (any, error)) (journal.DailyEntry, error) {
	var entry journal.DailyEntry
	resp, err := client.get(ctx, "/entries/"+date)
	if err != nil {
		return entry, err
	}
	if err := decodeJSON(resp, &entry); err != nil && !errors.Is(err, errNotFound) {
		return entry, err
	}
	entry.Date = date

	for _, name := range []string{"mood", "energy", "highlight", "gratitude"} {
		if !changed(name) {
			continue
		}
		v, err := value(name)
		if err != nil {
			return entry, err
		}
		switch name {
		case "mood":
			f := v.(float64)
			entry.Mood = &f
		case "energy":
			f := v.(float64)
			entry.Energy = &f
		case "highlight":
			s := v.(string)
			entry.Highlight = &s
		case "gratitude":
			s := v.(string)
			entry.Gratitude = &s
		}
	}

	resp, err = client.post(ctx, "/entries", entry)
	if err != nil {
		return entry, err
	}
	var stored journal.DailyEntry
	if err := decodeJSON(resp, &stored); err != nil {
		return entry, err
	}
	return stored, nil
}

// --- show / list / streak ---

var showCmd = &cobra.Command{
	Use:   "show [date]",
	Short: "Show the check-in for a day (default today)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date := journal.LocalDate(time.Now())
		if len(args) == 1 {
			date = args[0]
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/entries/"+date)
		if err != nil {
			return err
		}
		var entry journal.DailyEntry
		if err := decodeJSON(resp, &entry); err != nil {
			if errors.Is(err, errNotFound) {
				faintColor.Fprintf(stdout, "No entry for %s.\n", date)
				return nil
			}
			return err
		}

		printEntry(entry)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all check-ins",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/entries")
		if err != nil {
			return err
		}
		var entries []journal.DailyEntry
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		printEntries(entries)
		return nil
	},
}

var streakCmd = &cobra.Command{
	Use:   "streak",
	Short: "Show the current check-in streak",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/streak")
		if err != nil {
			return err
		}
		var result struct {
			Streak   int    `json:"streak"`
			HasToday bool   `json:"hasToday"`
			Date     string `json:"date"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		unit := "days"
		if result.Streak == 1 {
			unit = "day"
		}
		fmt.Fprintf(stdout, "%s %d %s\n", labelColor.Sprint("Streak:"), result.Streak, unit)
		if !result.HasToday {
			printWarning("No check-in yet for %s", result.Date)
		}
		return nil
	},
}

// --- settings ---

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or update reminder and theme settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/settings")
		if err != nil {
			return err
		}
		var s journal.Settings
		if err := decodeJSON(resp, &s); err != nil {
			return err
		}

		fmt.Fprintf(stdout, "  %s = %t\n", labelColor.Sprint("reminder_enabled"), s.ReminderEnabled)
		fmt.Fprintf(stdout, "  %s = %s\n", labelColor.Sprint("reminder_time"), s.ReminderTime)
		fmt.Fprintf(stdout, "  %s = %s\n", labelColor.Sprint("theme"), s.Theme)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a setting (reminder_enabled, reminder_time, theme)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		patch, err := settingsPatch(key, value)
		if err != nil {
			return err
		}
		if err := patch.Validate(); err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.patch(cmd.Context(), "/settings", patch)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

// settingsPatch maps a CLI key to a partial settings update.
func settingsPatch(key, value string) (journal.SettingsPatch, error) {
	var patch journal.SettingsPatch
	switch key {
	case "reminder_enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return patch, fmt.Errorf("invalid boolean value for %s: %w", key, err)
		}
		patch.ReminderEnabled = &b
	case "reminder_time":
		patch.ReminderTime = &value
	case "theme":
		t := journal.Theme(value)
		patch.Theme = &t
	default:
		return patch, fmt.Errorf("unknown setting %q: want reminder_enabled, reminder_time or theme", key)
	}
	return patch, nil
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}

// --- onboarding ---

var onboardingCmd = &cobra.Command{
	Use:   "onboarding",
	Short: "Show, complete or reset onboarding",
}

func onboardingAction(use, short, method, path, done string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}

			resp, err := client.do(cmd.Context(), method, path, nil)
			if err != nil {
				return err
			}
			var state journal.OnboardingState
			if err := decodeJSON(resp, &state); err != nil {
				return err
			}

			if done != "" {
				printSuccess("%s", done)
			}
			printStatus("Completed", "%t", state.Completed)
			printStatus("Step", "%d", state.CurrentStep)
			return nil
		},
	}
}

func init() {
	onboardingCmd.AddCommand(onboardingAction("show", "Show onboarding state", "GET", "/onboarding", ""))
	onboardingCmd.AddCommand(onboardingAction("complete", "Mark onboarding complete", "POST", "/onboarding/complete", "Onboarding complete"))
	onboardingCmd.AddCommand(onboardingAction("reset", "Reset onboarding so it runs again", "DELETE", "/onboarding", "Onboarding reset"))
}

// --- gateway ---

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Inspect or refresh the offline cache",
}

var gatewayStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show offline cache status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/gateway")
		if err != nil {
			return err
		}
		var st gateway.Status
		if err := decodeJSON(resp, &st); err != nil {
			return err
		}

		printGatewayStatus(st)
		return nil
	},
}

var gatewayInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Precache the app shell and activate it now",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Installing %s...", "offline cache")
		resp, err := client.post(cmd.Context(), "/gateway/install", nil)
		if err != nil {
			return err
		}
		var st gateway.Status
		if err := decodeJSON(resp, &st); err != nil {
			return err
		}

		printSuccess("Offline cache %s active", st.Active)
		printGatewayStatus(st)
		return nil
	},
}

func printGatewayStatus(st gateway.Status) {
	table := uitable.New()
	table.AddRow(labelColor.Sprint("State:"), st.State)
	table.AddRow(labelColor.Sprint("Manifest:"), st.Manifest)
	active := st.Active
	if active == "" {
		active = "-"
	}
	table.AddRow(labelColor.Sprint("Active:"), active)
	table.AddRow(labelColor.Sprint("Claimed:"), strconv.FormatBool(st.Claimed))
	table.AddRow(labelColor.Sprint("Generations:"), fmt.Sprint(st.Generations))
	fmt.Fprintln(stdout, table)
}

func init() {
	gatewayCmd.AddCommand(gatewayStatusCmd)
	gatewayCmd.AddCommand(gatewayInstallCmd)
}

// --- notify ---

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Deliver a push notification through the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := map[string]string{}
		for _, name := range []string{"title", "body", "url"} {
			if cmd.Flags().Changed(name) {
				v, _ := cmd.Flags().GetString(name)
				payload[name] = v
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/push", payload)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}

		printSuccess("Notification sent")
		return nil
	},
}

func init() {
	notifyCmd.Flags().String("title", "", "notification title (default Pulse)")
	notifyCmd.Flags().String("body", "", "notification body")
	notifyCmd.Flags().String("url", "", "page opened on click (default /)")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Fprintf(stdout, "  %s = %s\n", labelColor.Sprint(k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}


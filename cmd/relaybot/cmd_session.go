package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/relaybot/internal/types"
)

var sessionsURL string

func init() {
	sessionListCmd.Flags().StringVar(&sessionsURL, "url", "", "sessions endpoint (default http://localhost:<PORT>/api/sessions)")
	sessionCmd.AddCommand(sessionListCmd)
	rootCmd.AddCommand(sessionCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect sessions held by the running daemon",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List owner and staff sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Admin.Token == "" {
			return fmt.Errorf("ADMIN_TOKEN is not set")
		}

		url := sessionsURL
		if url == "" {
			url = "http://localhost:" + strconv.Itoa(cfg.Port) + "/api/sessions"
		}
		snap, err := fetchSessions(cmd, url, cfg.Admin.Token)
		if err != nil {
			return err
		}

		if len(snap.Owners) == 0 && len(snap.Staff) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ROLE\tCHAT\tBACKEND ID\tWEBSITE\tEMAIL\tEXPIRES")
		for _, o := range snap.Owners {
			fmt.Fprintf(w, "owner\t%s\t%s\t-\t%s\t%s\n", o.ChatID, o.BackendID, o.Email, expiry(o.ExpiresAt))
		}
		for _, s := range snap.Staff {
			fmt.Fprintf(w, "staff\t%s\t%s\t%s\t%s\t%s\n", s.ChatID, s.StaffID, s.WebsiteID, s.Email, expiry(s.ExpiresAt))
		}
		return w.Flush()
	},
}

func fetchSessions(cmd *cobra.Command, url, token string) (types.SessionSnapshot, error) {
	var snap types.SessionSnapshot

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
	if err != nil {
		return snap, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return snap, fmt.Errorf("fetch sessions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return snap, fmt.Errorf("fetch sessions: %s: %s", resp.Status, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decode sessions: %w", err)
	}
	return snap, nil
}

func expiry(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}

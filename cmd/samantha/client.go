package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/antoniostano/samantha-voice/internal/config"
	"github.com/antoniostano/samantha-voice/internal/convlog"
	"github.com/antoniostano/samantha-voice/internal/protocol"
)

// apiClient talks to a running `samantha serve`.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(addr string) *apiClient {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	// Start waits for both speech services and the microphone.
	return &apiClient{base: strings.TrimRight(base, "/"), http: &http.Client{Timeout: 90 * time.Second}}
}

type apiError struct {
	Status int
	Code   string `json:"code"`
	Msg    string `json:"error"`
}

func (e *apiError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return e.Msg
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("server not reachable at %s (is `samantha serve` running?): %w", c.base, err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		apiErr := &apiError{Status: res.StatusCode}
		_ = json.NewDecoder(res.Body).Decode(apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func startCmd(client func() (*apiClient, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start listening for the wake word",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			var msg protocol.MessageResponse
			if err := c.do(cmd.Context(), http.MethodPost, "/v1/start", nil, &msg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg.Message)
			return nil
		},
	}
}

func stopCmd(client func() (*apiClient, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop listening and release the microphone",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			var msg protocol.MessageResponse
			if err := c.do(cmd.Context(), http.MethodPost, "/v1/stop", nil, &msg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg.Message)
			return nil
		},
	}
}

func speakCmd(client func() (*apiClient, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "speak <text>",
		Short: "Speak text, queued behind any reply already playing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			var msg protocol.MessageResponse
			req := protocol.SpeakRequest{Text: strings.Join(args, " ")}
			if err := c.do(cmd.Context(), http.MethodPost, "/v1/speak", req, &msg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg.Message)
			return nil
		},
	}
}

func statusCmd(client func() (*apiClient, error)) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show listener status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			var st protocol.StatusResponse
			if err := c.do(cmd.Context(), http.MethodGet, "/v1/status", nil, &st); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			fmt.Fprintf(out, "active:      %t\n", st.Active)
			fmt.Fprintf(out, "session:     %s\n", st.Session)
			fmt.Fprintf(out, "playing:     %t (queued %d)\n", st.Playing, st.QueueDepth)
			fmt.Fprintf(out, "profile:     %s\n", st.Profile)
			fmt.Fprintf(out, "wake words:  %s\n", strings.Join(st.WakeWords, ", "))
			vad := st.VAD
			if st.Degraded {
				vad += " (degraded)"
			}
			fmt.Fprintf(out, "vad:         %s\n", vad)
			fmt.Fprintf(out, "log:         %s\n", st.LogFile)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

func logCmd(client func() (*apiClient, error)) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent conversation entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := recentEntries(cmd.Context(), client, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "[%s] %s: %s\n", e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Kind, e.Text)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	return cmd
}

// recentEntries asks the server first and reads the log file when it is down.
func recentEntries(ctx context.Context, client func() (*apiClient, error), limit int) ([]convlog.Entry, error) {
	if c, err := client(); err == nil {
		var body struct {
			Entries []convlog.Entry `json:"entries"`
		}
		if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/conversation?limit=%d", limit), nil, &body); err == nil {
			return body.Entries, nil
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	store, err := convlog.NewFileStore(cfg.ConversationLog(), cfg.AssistantName())
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Recent(ctx, limit)
}

// Package cli implements the relayctl commands.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const defaultRelayURL = "http://localhost:8787"

var (
	relayURL   string
	timeoutArg time.Duration
)

// NewRootCmd builds the top-level command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "relayctl",
		Short:         "Operate a running attendance relay",
		Long:          "Send detections and chat messages to the relay, inspect detections and conversation bindings, and proxy frames for recognition.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&relayURL, "relay", "r", "", "Relay base URL (default: $RELAY_URL or "+defaultRelayURL+")")
	root.PersistentFlags().DurationVar(&timeoutArg, "timeout", 30*time.Second, "Request timeout, 0 for none")

	root.AddCommand(
		newEventCmd(),
		newChatCmd(),
		newDetectionsCmd(),
		newConversationsCmd(),
		newHealthCmd(),
		newRecognizeCmd(),
		newWatchCmd(),
	)
	return root
}

func getRelayURL() string {
	if relayURL != "" {
		return strings.TrimRight(relayURL, "/")
	}
	if env := os.Getenv("RELAY_URL"); env != "" {
		return strings.TrimRight(env, "/")
	}
	return defaultRelayURL
}

// statusError reports a non-2xx answer from the relay. The body has
// already been printed.
type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("relay answered %d %s", e.status, http.StatusText(e.status))
}

func httpClient() *http.Client {
	return &http.Client{Timeout: timeoutArg}
}

func doJSON(ctx context.Context, method, path string, payload interface{}) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, getRelayURL()+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return httpClient().Do(req)
}

// printResponse pretty-prints a JSON body and turns non-2xx statuses into errors.
func printResponse(out io.Writer, resp *http.Response) error {
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		fmt.Fprintln(out, pretty.String())
	} else if len(raw) > 0 {
		fmt.Fprintln(out, string(raw))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{status: resp.StatusCode}
	}
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

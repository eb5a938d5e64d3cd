package cli

import (
	"bufio"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream accepted detections as they arrive",
		RunE:  runWatch,
	}

	cmd.Flags().StringP("camera", "c", "", "Only show detections from this camera")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	camera, _ := cmd.Flags().GetString("camera")

	target := getRelayURL() + "/detections/stream"
	if camera != "" {
		target += "?camera_id=" + url.QueryEscape(camera)
	}

	req, err := http.NewRequestWithContext(commandContext(cmd), http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// Streams are open-ended; only the context ends them.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return printResponse(cmd.OutOrStdout(), resp)
	}

	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(resp.Body)
	event := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if event == "detection" {
				fmt.Fprintln(out, strings.TrimPrefix(line, "data: "))
			}
		case line == "":
			event = ""
		}
	}
	if err := scanner.Err(); err != nil && commandContext(cmd).Err() == nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

package cli

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newRecognizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recognize <image...>",
		Short: "Send image files through the relay's recognition proxy",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRecognize,
	}

	cmd.Flags().String("threshold", "", "Detection probability threshold (relay default 0.7)")
	cmd.Flags().String("plugins", "", "Comma-separated face plugins (relay default age,gender)")
	return cmd
}

func runRecognize(cmd *cobra.Command, args []string) error {
	threshold, _ := cmd.Flags().GetString("threshold")
	plugins, _ := cmd.Flags().GetString("plugins")

	params := url.Values{}
	if threshold != "" {
		params.Set("det_prob_threshold", threshold)
	}
	if plugins != "" {
		params.Set("face_plugins", plugins)
	}
	target := getRelayURL() + "/recognize-frame"
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var failed error
	for _, path := range args {
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", path)
		if err := recognizeFile(cmd, target, path); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %s: %v\n", path, err)
			failed = err
		}
	}
	return failed
}

func recognizeFile(cmd *cobra.Command, target, path string) error {
	image, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := part.Write(image); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(commandContext(cmd), http.MethodPost, target, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := httpClient().Do(req)
	if err != nil {
		return err
	}
	return printResponse(cmd.OutOrStdout(), resp)
}

package cli

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newEventCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event <name>",
		Short: "Send a face detection event",
		Args:  cobra.ExactArgs(1),
		RunE:  runEvent,
	}
	cmd.Flags().StringP("camera", "c", "", "Camera id")
	cmd.Flags().Float64("confidence", 0, "Detection confidence in [0,1]; omitted unless set")
	cmd.Flags().String("conversation", "", "Explicit conversation id")
	cmd.Flags().StringToString("meta", nil, "Extra metadata as key=value pairs")
	return cmd
}

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat <query...>",
		Short: "Send a manual query to the AI backend",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runChat,
	}
	cmd.Flags().StringP("camera", "c", "", "Camera id whose conversation to use")
	cmd.Flags().String("conversation", "", "Explicit conversation id")
	return cmd
}

func newDetectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detections",
		Short: "List recent accepted detections",
		RunE:  runDetections,
	}
	cmd.Flags().IntP("limit", "l", 50, "Max results")
	return cmd
}

func newConversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "Camera conversation bindings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List camera to conversation bindings",
		RunE:  runConversationsList,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear <camera_id>",
		Short: "Forget the conversation bound to a camera",
		Args:  cobra.ExactArgs(1),
		RunE:  runConversationsClear,
	})
	return cmd
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check relay liveness",
		RunE:  runHealth,
	}
}

func runEvent(cmd *cobra.Command, args []string) error {
	camera, _ := cmd.Flags().GetString("camera")
	confidence, _ := cmd.Flags().GetFloat64("confidence")
	conversation, _ := cmd.Flags().GetString("conversation")
	meta, _ := cmd.Flags().GetStringToString("meta")

	payload := map[string]interface{}{
		"event": "face_recognized",
		"name":  args[0],
	}
	if camera != "" {
		payload["camera_id"] = camera
	}
	if cmd.Flags().Changed("confidence") {
		if confidence < 0 || confidence > 1 {
			return fmt.Errorf("confidence must be within [0,1], got %v", confidence)
		}
		payload["confidence"] = confidence
	}
	if conversation != "" {
		payload["conversation_id"] = conversation
	}
	if len(meta) > 0 {
		metadata := make(map[string]interface{}, len(meta))
		for k, v := range meta {
			metadata[k] = v
		}
		payload["metadata"] = metadata
	}

	resp, err := doJSON(commandContext(cmd), http.MethodPost, "/face-event", payload)
	if err != nil {
		return fmt.Errorf("send event: %w", err)
	}
	return printResponse(cmd.OutOrStdout(), resp)
}

func runChat(cmd *cobra.Command, args []string) error {
	camera, _ := cmd.Flags().GetString("camera")
	conversation, _ := cmd.Flags().GetString("conversation")

	payload := map[string]interface{}{"query": strings.Join(args, " ")}
	if camera != "" {
		payload["camera_id"] = camera
	}
	if conversation != "" {
		payload["conversation_id"] = conversation
	}

	resp, err := doJSON(commandContext(cmd), http.MethodPost, "/chat", payload)
	if err != nil {
		return fmt.Errorf("send chat: %w", err)
	}
	return printResponse(cmd.OutOrStdout(), resp)
}

func runDetections(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	resp, err := doJSON(commandContext(cmd), http.MethodGet, "/detections?limit="+strconv.Itoa(limit), nil)
	if err != nil {
		return fmt.Errorf("list detections: %w", err)
	}
	return printResponse(cmd.OutOrStdout(), resp)
}

func runConversationsList(cmd *cobra.Command, args []string) error {
	resp, err := doJSON(commandContext(cmd), http.MethodGet, "/conversations", nil)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	return printResponse(cmd.OutOrStdout(), resp)
}

func runConversationsClear(cmd *cobra.Command, args []string) error {
	resp, err := doJSON(commandContext(cmd), http.MethodDelete, "/conversations/"+url.PathEscape(args[0]), nil)
	if err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}
	return printResponse(cmd.OutOrStdout(), resp)
}

func runHealth(cmd *cobra.Command, args []string) error {
	resp, err := doJSON(commandContext(cmd), http.MethodGet, "/health", nil)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return printResponse(cmd.OutOrStdout(), resp)
}

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"roastmachine/internal/api"
	"roastmachine/internal/services"
)

var contentTypesByExtension = map[string]string{
	".webm": "audio/webm",
	".weba": "audio/webm",
	".wav":  "audio/wav",
	".mp3":  "audio/mp3",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/ogg",
}

func contentTypeForPath(path string) string {
	return contentTypesByExtension[strings.ToLower(filepath.Ext(path))]
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var userID string
	var intensity string
	var sessionID string
	var contentType string
	var wait bool

	cmd := &cobra.Command{
		Use:   "submit <audio-file>",
		Short: "Queue an audio clip for roasting",
		Long: "Queue an audio clip for the daemon's workers. With --wait the command\n" +
			"polls until the run finishes or the await budget is exhausted.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := args[0]
			audio, err := readAudioFile(path, cfg.Ingress.MaxUploadBytes)
			if err != nil {
				return err
			}
			declared := strings.TrimSpace(contentType)
			if declared == "" {
				declared = contentTypeForPath(path)
			}
			normalized, err := api.NewUploadPolicy(cfg.Ingress).Validate(declared, int64(len(audio)))
			if err != nil {
				return err
			}

			return ctx.withStores(func(s *stores) error {
				req := api.SubmitRequest{
					UserID:      userID,
					Intensity:   intensity,
					SessionID:   sessionID,
					ContentType: normalized,
					Audio:       audio,
				}
				run, err := s.service.Submit(cmd.Context(), req)
				if err != nil {
					return err
				}
				if wait {
					done, awaitErr := s.service.Await(cmd.Context(), run.ID)
					if done.ID != "" {
						run = done
					}
					if awaitErr != nil && !errors.Is(awaitErr, services.ErrTimeout) {
						return awaitErr
					}
					if awaitErr != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "run %s is still %s; check it later with `roast runs show %s`\n", run.ID, run.Status, run.ID)
					}
				}
				return printSubmittedRun(cmd, ctx, run)
			})
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "User id the attempt is recorded under (required)")
	cmd.Flags().StringVarP(&intensity, "intensity", "i", "", "Commentary intensity for this run (defaults to the session preference)")
	cmd.Flags().StringVar(&sessionID, "session-id", "", "Client session id echoed in the output")
	cmd.Flags().StringVar(&contentType, "content-type", "", "Override the content type derived from the file extension")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the daemon to finish the run")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func readAudioFile(path string, limit int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer file.Close()

	reader := io.Reader(file)
	if limit > 0 {
		// One extra byte lets the upload policy report oversize files.
		reader = io.LimitReader(file, limit+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return data, nil
}

func printSubmittedRun(cmd *cobra.Command, ctx *commandContext, run api.Run) error {
	if handled, err := writeOutput(cmd, ctx, run); handled {
		return err
	}
	out := cmd.OutOrStdout()
	if !run.Terminal() {
		fmt.Fprintf(out, "Queued run %s for %s (%s)\n", run.ID, run.UserID, run.Status)
		return nil
	}
	fmt.Fprintln(out, renderRunDetail(run, nil, shouldColorize(out)))
	return nil
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/credence/internal/model"
)

var (
	verifyText    string
	verifyURL     string
	verifyImage   string
	verifyAudio   string
	verifyUser    string
	verifyTimeout time.Duration
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify one claim, URL, image or audio clip and print the verdict",
	Long: `Verify runs the full pipeline once and prints the stored verdict as JSON.

Example:
  credence verify --text "The Eiffel Tower was moved to Berlin"
  credence verify --url https://example.com/news/story
  credence verify --image photo.jpg --text "Flooding in Lisbon today"`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVar(&verifyText, "text", "", "claim text, or text accompanying an image")
	verifyCmd.Flags().StringVar(&verifyURL, "url", "", "article URL")
	verifyCmd.Flags().StringVar(&verifyImage, "image", "", "path to an image file")
	verifyCmd.Flags().StringVar(&verifyAudio, "audio", "", "path to an audio file (needs llm.transcription_model)")
	verifyCmd.Flags().StringVar(&verifyUser, "user", "", "attribute the verdict to this user id")
	verifyCmd.Flags().DurationVar(&verifyTimeout, "timeout", 2*time.Minute, "overall timeout")
}

func runVerify(cmd *cobra.Command, args []string) error {
	sub, err := submissionFromFlags(verifyText, verifyURL, verifyImage, verifyAudio)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	res, err := a.service.Verify(ctx, sub, verifyUser)
	if err != nil {
		return fmt.Errorf("verify failed (%s): %w", model.KindOf(err), err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"verification": res.Verdict,
		"analysis":     res.Verdict.Analysis(),
		"cached":       res.Cached,
	})
}

// submissionFromFlags reads media files and sniffs their MIME type
func submissionFromFlags(text, url, imagePath, audioPath string) (model.Submission, error) {
	sub := model.Submission{Text: text, URL: url}
	if imagePath != "" {
		blob, err := readBlob(imagePath)
		if err != nil {
			return sub, fmt.Errorf("read image: %w", err)
		}
		sub.Image = blob
	}
	if audioPath != "" {
		blob, err := readBlob(audioPath)
		if err != nil {
			return sub, fmt.Errorf("read audio: %w", err)
		}
		sub.Audio = blob
	}
	if sub.Empty() {
		return sub, fmt.Errorf("nothing to verify: pass --text, --url, --image or --audio")
	}
	return sub, nil
}

func readBlob(path string) (*model.Blob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	mime, _, _ := strings.Cut(http.DetectContentType(data), ";")
	return &model.Blob{Data: data, MimeType: mime}, nil
}

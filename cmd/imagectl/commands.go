package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-image/pkg/simpleimage"
)

func NewUploadCommand() *cobra.Command {
	var contentType string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, comp, _, err := loadComponents(cmd)
			if err != nil {
				return err
			}
			defer comp.Close()

			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			info, err := file.Stat()
			if err != nil {
				return err
			}
			if contentType == "" {
				contentType = simpleimage.ContentTypeFromPath(args[0])
			}

			name := filepath.Base(args[0])
			if err := comp.Validator.Validate(simpleimage.UploadCandidate{
				Present:     true,
				FileName:    name,
				ContentType: contentType,
				Size:        info.Size(),
			}); err != nil {
				return err
			}

			image, err := comp.Service.CreateImage(cmd.Context(), simpleimage.UploadImageRequest{
				Reader:      file,
				FileName:    name,
				ContentType: contentType,
				Size:        info.Size(),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), image)
		},
	}

	cmd.Flags().StringVar(&contentType, "content-type", "", "content type (inferred from the extension when empty)")
	return cmd
}

func NewGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show an image record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, comp, _, err := loadComponents(cmd)
			if err != nil {
				return err
			}
			defer comp.Close()

			image, err := comp.Service.GetImage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), image)
		},
	}
}

func NewSearchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search <label>",
		Short: "List images carrying a label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, comp, _, err := loadComponents(cmd)
			if err != nil {
				return err
			}
			defer comp.Close()

			images, err := comp.Service.SearchByLabel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), images)
		},
	}
}

func NewDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an image and its record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, comp, _, err := loadComponents(cmd)
			if err != nil {
				return err
			}
			defer comp.Close()

			if err := comp.Service.DeleteImage(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func NewDownloadCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Download image content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, comp, _, err := loadComponents(cmd)
			if err != nil {
				return err
			}
			defer comp.Close()

			result, err := comp.Service.DownloadImage(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if output == "" {
				output = result.Filename()
			}
			if err := os.WriteFile(output, result.Data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes (%s) to %s\n", len(result.Data), result.ContentType, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (default image-<id><ext>)")
	return cmd
}

func NewAnnotateCommand() *cobra.Command {
	var ids []string

	cmd := &cobra.Command{
		Use:   "annotate [object-path...]",
		Short: "Detect and store labels for images",
		Long: `Detect labels with Amazon Rekognition and store them on the image
records. Images are selected by --id or by object path; objects that are not
JPEG or PNG are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(ids) == 0 && len(args) == 0 {
				return fmt.Errorf("pass --id or at least one object path")
			}

			cfg, comp, logger, err := loadComponents(cmd)
			if err != nil {
				return err
			}
			defer comp.Close()

			annotator, err := cfg.BuildAnnotator(cmd.Context(), comp, logger)
			if err != nil {
				return err
			}

			failed := 0
			for _, id := range ids {
				image, err := annotator.AnnotateByID(cmd.Context(), id)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", id, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", id, image.Labels)
			}

			for _, outcome := range annotator.AnnotateObjectPaths(cmd.Context(), args) {
				switch {
				case outcome.Skipped():
					fmt.Fprintf(cmd.OutOrStdout(), "%s: skipped\n", outcome.ObjectPath)
				case outcome.Err != nil:
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", outcome.ObjectPath, outcome.Err)
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", outcome.ObjectPath, outcome.Image.Labels)
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d image(s) failed to annotate", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&ids, "id", nil, "image id to annotate (repeatable)")
	return cmd
}

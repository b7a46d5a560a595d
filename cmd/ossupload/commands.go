package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tendant/oss-upload/pkg/ossupload"
	"github.com/tendant/oss-upload/pkg/ossupload/credential"
	"github.com/tendant/oss-upload/pkg/ossupload/objectkey"
	"github.com/tendant/oss-upload/pkg/ossupload/picker"
)

// NewUploadCommand creates the upload command
func NewUploadCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file and print its public URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := ossupload.FileFromPath(args[0])
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			uploader, err := cfg.BuildUploader(newLogger(cmd, cfg))
			if err != nil {
				return err
			}

			result, err := uploader.Upload(cmd.Context(), file)
			if err != nil {
				if msg := ossupload.ErrorMessage(err); msg != "" {
					return fmt.Errorf("upload failed: %s", msg)
				}
				return fmt.Errorf("upload failed: %w", err)
			}

			if asJSON {
				return writeJSON(cmd, result)
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.URL)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

// NewPickCommand creates the pick command
func NewPickCommand() *cobra.Command {
	var original bool
	var maxDimension uint

	cmd := &cobra.Command{
		Use:   "pick [dir]",
		Short: "Pick the newest image in a directory and upload it",
		Long: `Pick the most recently modified image in dir (default OSS_ALBUM_DIR), compress it
unless --original is given, and upload it while progress is reported on stderr.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			uploader, err := cfg.BuildUploader(newLogger(cmd, cfg))
			if err != nil {
				return err
			}

			dir := cfg.AlbumDir
			if len(args) == 1 {
				dir = args[0]
			}

			opts := picker.DefaultChooseOptions()
			if original {
				opts.SizeType = picker.SizeOriginal
			}

			compressor := picker.NewCompressor(picker.NewDirPicker(dir))
			if maxDimension > 0 {
				compressor.MaxDimension = maxDimension
			}

			url, err := picker.ChooseAndUpload(cmd.Context(), compressor, uploader,
				picker.WriterFeedback{W: cmd.ErrOrStderr()}, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}

	cmd.Flags().BoolVar(&original, "original", false, "upload the original image without compression")
	cmd.Flags().UintVar(&maxDimension, "max-dimension", picker.DefaultMaxDimension, "longest side of compressed images")
	return cmd
}

// NewTokenCommand creates the token command
func NewTokenCommand() *cobra.Command {
	var showSecret bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Fetch an upload credential and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			provider := credential.NewHTTPProvider(cfg.CredentialURL,
				credential.WithBearerToken(cfg.BearerToken),
				credential.WithLogger(newLogger(cmd, cfg)),
			)
			cred, err := provider.Fetch(cmd.Context())
			if err != nil {
				return err
			}

			if !showSecret {
				cred.AccessKeySecret = mask(cred.AccessKeySecret)
				cred.SecurityToken = mask(cred.SecurityToken)
			}
			return writeJSON(cmd, cred)
		},
	}

	cmd.Flags().BoolVar(&showSecret, "show-secret", false, "print the secret and security token unmasked")
	return cmd
}

// NewKeyCommand creates the key command
func NewKeyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key <file>",
		Short: "Print the object key an upload of file would use",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := ossupload.FileFromPath(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			gen := objectkey.NewHashGenerator(cfg.KeyPrefix)
			fmt.Fprintln(cmd.OutOrStdout(), gen.GenerateKey(objectkey.FileInfo{
				Name: file.Name,
				Path: file.Path,
				Size: file.Size,
				Type: file.Type,
			}))
			return nil
		},
	}
	return cmd
}

// NewSignCommand creates the sign command
func NewSignCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign <file>",
		Short: "Print the signed form fields for an upload without sending it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := ossupload.FileFromPath(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			uploader, err := cfg.BuildUploader(newLogger(cmd, cfg))
			if err != nil {
				return err
			}

			req, err := uploader.Sign(cmd.Context(), file)
			if err != nil {
				return err
			}
			return writeJSON(cmd, signedForm{
				URL:       req.URL,
				Key:       req.Key,
				FieldName: req.FieldName,
				FormData:  req.FormData,
			})
		},
	}
	return cmd
}

type signedForm struct {
	URL       string            `json:"url"`
	Key       string            `json:"key"`
	FieldName string            `json:"fieldName"`
	FormData  map[string]string `json:"formData"`
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func mask(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}

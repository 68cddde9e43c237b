package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/MarcoPoloResearchLab/deckelo/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const stdoutPath = "-"

// withSession opens the stored state, runs fn and writes pending changes.
func withSession(ctx context.Context, fragment string, fn func(*session.Service, session.OpenResult) error) error {
	appConfig, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	app, err := openApplication(appConfig, logger, nil)
	if err != nil {
		return err
	}
	result, err := app.session.Open(ctx, fragment)
	if err != nil {
		_ = app.shutdown(ctx)
		return err
	}
	if result.FragmentError != nil {
		logger.Warn("link ignored", zap.Error(result.FragmentError))
	}

	runErr := fn(app.session, result)
	if err := app.shutdown(ctx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func newExportCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the decks and matches to a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), "", func(service *session.Service, _ session.OpenResult) error {
				path := output
				if path == "" {
					path = service.ExportFileName()
				}
				if path == stdoutPath {
					return service.Export(cmd.OutOrStdout())
				}
				return writeFile(path, service.Export)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (dated name by default, - for stdout)")
	return cmd
}

func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the decks and matches with a JSON export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), "", func(service *session.Service, _ session.OpenResult) error {
				var reader io.Reader = cmd.InOrStdin()
				if args[0] != stdoutPath {
					file, err := os.Open(args[0])
					if err != nil {
						return err
					}
					defer file.Close()
					reader = file
				}
				result, err := service.ImportFile(cmd.Context(), reader)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d decks and %d matches\n", result.Decks, result.Matches)
				return nil
			})
		},
	}
}

func newShareCommand() *cobra.Command {
	var (
		withQR   bool
		qrOutput string
	)
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Print a share link, optionally as a QR code image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), "", func(service *session.Service, _ session.OpenResult) error {
				if !withQR && qrOutput == "" {
					share, err := service.Share()
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), share.URL)
					return nil
				}

				image, share, err := service.ShareQR()
				if err != nil {
					return err
				}
				path := qrOutput
				if path == "" {
					path = service.QRFileName()
				}
				if err := os.WriteFile(path, image, 0o644); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), share.URL)
				fmt.Fprintf(cmd.OutOrStdout(), "qr code written to %s\n", path)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&withQR, "qr", false, "Also write the link as a QR code PNG")
	cmd.Flags().StringVar(&qrOutput, "qr-output", "", "QR code file (dated name by default)")
	return cmd
}

func newOpenLinkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "open-link <link>",
		Short: "Load a share or legacy link and store its contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), args[0], func(_ *session.Service, result session.OpenResult) error {
				if result.FragmentError != nil {
					return result.FragmentError
				}
				if result.Source != session.SourceFragment {
					return session.ErrNoPayload
				}
				fmt.Fprintf(cmd.OutOrStdout(), "loaded %d decks and %d matches\n", result.Decks, result.Matches)
				return nil
			})
		},
	}
}

func writeFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

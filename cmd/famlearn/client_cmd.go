package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xxxsen/famlearn/internal/capture"
	"github.com/xxxsen/famlearn/internal/client"
	"github.com/xxxsen/famlearn/internal/model"
)

type clientFlags struct {
	server string
	owner  string
	pin    string
}

func (f *clientFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.server, "server", "http://127.0.0.1:8080", "famlearn server base url")
	cmd.Flags().StringVar(&f.owner, "owner", "", "owner id, for example child_1")
	cmd.Flags().StringVar(&f.pin, "pin", "", "login pin when the server requires auth")
}

func (f *clientFlags) connect(ctx context.Context) (*client.Client, error) {
	if strings.TrimSpace(f.owner) == "" {
		return nil, fmt.Errorf("--owner is required")
	}
	c := client.New(client.Config{BaseURL: f.server})
	if f.pin != "" {
		if _, err := c.Login(ctx, f.pin); err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
	}
	return c, nil
}

func newUploadCmd() *cobra.Command {
	var (
		flags  clientFlags
		single bool
	)
	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "upload a book in chunks and print the merge result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := flags.connect(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = c.Logout(context.Background()) }()
			f, closer, err := client.OpenFile(args[0])
			if err != nil {
				return err
			}
			defer closer.Close()

			out := cmd.OutOrStdout()
			progress := func(p client.Progress) {
				fmt.Fprintf(out, "\r%3d%% %d/%d bytes", p.Percentage, p.Loaded, p.Total)
			}
			var res client.Result
			if single {
				res = c.UploadSingle(ctx, f, flags.owner, "/api/upload-book", progress)
			} else {
				res = c.UploadChunked(ctx, f, flags.owner, "/api/upload-chunk", progress)
			}
			fmt.Fprintln(out)
			if !res.Success {
				return errors.New(res.Error)
			}
			fmt.Fprintln(out, string(res.Data))
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVar(&single, "single", false, "send the whole file in one request to /api/upload-book")
	return cmd
}

// parseStatuses reads --status values of the form problem=status.
func parseStatuses(raw []string) (map[string]model.ProblemStatus, error) {
	out := make(map[string]model.ProblemStatus, len(raw))
	for _, kv := range raw {
		id, status, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("invalid --status %q, want problem=status", kv)
		}
		out[strings.TrimSpace(id)] = model.ProblemStatus(strings.TrimSpace(status))
	}
	return out, nil
}

func newCaptureCmd() *cobra.Command {
	var (
		flags    clientFlags
		statuses []string
	)
	cmd := &cobra.Command{
		Use:   "capture IMAGE...",
		Short: "recognize homework photos one at a time and save them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			edits, err := parseStatuses(statuses)
			if err != nil {
				return err
			}
			c, err := flags.connect(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = c.Logout(context.Background()) }()
			images, err := capture.ReadImages(args)
			if err != nil {
				return err
			}
			queue := capture.NewQueue(c, flags.owner)
			out := cmd.OutOrStdout()
			if len(images) == 1 {
				return captureSingle(ctx, out, queue, c, images[0], edits)
			}
			if len(edits) > 0 {
				return fmt.Errorf("--status only applies to a single image")
			}
			var saveErr error
			n, err := queue.Run(ctx, images, func(rec capture.Record) {
				if saveErr != nil {
					return
				}
				if err := c.SaveScannedItem(ctx, rec.Item, rec.Image.Encoded); err != nil {
					saveErr = fmt.Errorf("save page %d: %w", rec.Item.PageNumber, err)
					return
				}
				printItem(out, rec.Item)
			})
			fmt.Fprintf(out, "%d/%d pages recognized\n", n, len(images))
			if err != nil {
				return err
			}
			return saveErr
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringArrayVar(&statuses, "status", nil, "override a problem status before saving, id=correct|wrong|corrected")
	return cmd
}

func captureSingle(ctx context.Context, out io.Writer, queue *capture.Queue, saver capture.Saver, img capture.Image, edits map[string]model.ProblemStatus) error {
	draft, err := queue.Recognize(ctx, img)
	if err != nil {
		return err
	}
	for id, status := range edits {
		if err := draft.SetProblemStatus(id, status); err != nil {
			return fmt.Errorf("problem %s: %w", id, err)
		}
	}
	if err := draft.Save(ctx, saver); err != nil {
		return err
	}
	item := draft.Item()
	printItem(out, &item)
	return nil
}

func printItem(out io.Writer, item *model.ScannedItem) {
	fmt.Fprintf(out, "saved %s type=%s subject=%s problems=%d image=%s\n",
		item.ID, item.Meta.Type, item.Meta.Subject, len(item.Meta.Problems), item.ImagePath)
}

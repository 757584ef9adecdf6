package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-image/pkg/simpleimage"
	"github.com/tendant/simple-image/pkg/simpleimage/config"
	"github.com/tendant/simple-image/pkg/simpleimage/reconcile"
)

// NewUploadCommand creates the upload command
func NewUploadCommand(c *cli) *cobra.Command {
	var req simpleimage.UploadRequest

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			comp, err := c.components(cmd)
			if err != nil {
				return err
			}

			if req.Filename == "" {
				req.Filename = filepath.Base(args[0])
			}
			req.FileData = base64.StdEncoding.EncodeToString(data)

			record, err := comp.Service.Upload(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("upload failed: %w", err)
			}
			if c.jsonOutput {
				return c.printJSON(record)
			}
			fmt.Fprintf(c.out, "Image ID: %s\n", record.ImageID)
			fmt.Fprintf(c.out, "Object key: %s\n", record.ObjectKey)
			fmt.Fprintf(c.out, "Content type: %s (%d bytes)\n", record.ContentType, record.SizeBytes)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.OwnerID, "owner", "", "owner id (required)")
	cmd.Flags().StringVar(&req.Filename, "name", "", "filename to record (default: base name of <file>)")
	cmd.Flags().StringSliceVar(&req.Tags, "tag", nil, "tag to attach, repeatable")
	cmd.Flags().StringVar(&req.Description, "description", "", "free-form description")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

// NewListCommand creates the list command
func NewListCommand(c *cli) *cobra.Command {
	var (
		filter   simpleimage.QueryFilter
		from, to string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an owner's images, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("limit") && filter.Limit < 1 {
				return fmt.Errorf("--limit must be between 1 and %d", simpleimage.MaxListLimit)
			}
			var err error
			if filter.DateFrom, err = parseFlagTime("from", from); err != nil {
				return err
			}
			if filter.DateTo, err = parseFlagTime("to", to); err != nil {
				return err
			}
			comp, err := c.components(cmd)
			if err != nil {
				return err
			}

			result, err := comp.Service.List(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("list failed: %w", err)
			}
			if c.jsonOutput {
				return c.printJSON(result)
			}

			w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "IMAGE ID\tFILENAME\tSIZE\tTAGS\tCREATED")
			for _, rec := range result.Items {
				fmt.Fprintf(w, "%s\t%s\t%d\t%v\t%s\n",
					rec.ImageID, rec.Filename, rec.SizeBytes, rec.Tags, rec.CreatedAt.Format(time.RFC3339))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if result.NextCursor != "" {
				fmt.Fprintf(c.out, "\nNext cursor: %s\n", result.NextCursor)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filter.OwnerID, "owner", "", "owner id (required)")
	cmd.Flags().StringSliceVar(&filter.Tags, "tag", nil, "required tag, repeatable (all must match)")
	cmd.Flags().StringVar(&from, "from", "", "earliest creation time, RFC3339")
	cmd.Flags().StringVar(&to, "to", "", "latest creation time, RFC3339")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, fmt.Sprintf("page size (default %d, max %d)", simpleimage.DefaultListLimit, simpleimage.MaxListLimit))
	cmd.Flags().StringVar(&filter.Cursor, "cursor", "", "cursor from a previous page")
	cmd.Flags().StringVar(&filter.FilenameContains, "filename", "", "filename substring")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

// NewGetCommand creates the get command
func NewGetCommand(c *cli) *cobra.Command {
	var (
		outputPath string
		opts       simpleimage.GetOptions
	)

	cmd := &cobra.Command{
		Use:   "get <image-id>",
		Short: "Download an image or print a presigned URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := c.components(cmd)
			if err != nil {
				return err
			}

			got, err := comp.Service.Get(cmd.Context(), args[0], opts)
			if err != nil {
				return fmt.Errorf("get failed: %w", err)
			}

			if got.Descriptor != nil {
				if c.jsonOutput {
					return c.printJSON(got.Descriptor)
				}
				fmt.Fprintf(c.out, "URL: %s\n", got.Descriptor.URL)
				fmt.Fprintf(c.out, "Expires: %s\n", got.Descriptor.ExpiresAt.Format(time.RFC3339))
				return nil
			}

			if outputPath == "" {
				outputPath = got.Record.Filename
			}
			if err := os.WriteFile(outputPath, got.Data, 0o644); err != nil {
				return err
			}
			if c.jsonOutput {
				return c.printJSON(got.Record)
			}
			fmt.Fprintf(c.out, "Saved %d bytes to %s\n", len(got.Data), outputPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (default: the stored filename)")
	cmd.Flags().BoolVar(&opts.WantPresigned, "presign", false, "print a time-limited URL instead of downloading")
	cmd.Flags().BoolVar(&opts.AsAttachment, "attachment", false, "presigned URL forces a download")
	cmd.Flags().IntVar(&opts.ExpiresSeconds, "expires", 0, "presigned URL lifetime in seconds")
	return cmd
}

// NewDeleteCommand creates the delete command
func NewDeleteCommand(c *cli) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <image-id>",
		Short: "Delete an image and its metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := c.components(cmd)
			if err != nil {
				return err
			}
			if err := comp.Service.Delete(cmd.Context(), args[0], force); err != nil {
				return fmt.Errorf("delete failed: %w", err)
			}
			fmt.Fprintf(c.out, "Deleted %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "remove the record even if the object delete fails")
	return cmd
}

// NewReconcileCommand creates the reconcile command
func NewReconcileCommand(c *cli) *cobra.Command {
	var (
		ownerID     string
		sweep       reconcile.SweepOptions
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Find records whose object is missing and optionally remove them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := c.components(cmd)
			if err != nil {
				return err
			}

			scan, err := comp.Reconciler.ScanOwner(cmd.Context(), ownerID, reconcile.ScanOptions{
				Concurrency: concurrency,
				OnProgress: func(scanned int64) {
					if c.verbose {
						fmt.Fprintf(os.Stderr, "scanned %d records\n", scanned)
					}
				},
			})
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}

			// ScanOwner reported every stale record to the collector
			result, err := comp.Reconciler.Sweep(cmd.Context(), comp.Collector.Drain(), sweep)
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}

			if c.jsonOutput {
				return c.printJSON(struct {
					Scanned int64                  `json:"scanned"`
					Stale   []simpleimage.Orphan   `json:"stale"`
					Sweep   *reconcile.SweepResult `json:"sweep"`
				}{scan.TotalScanned, scan.Stale, result})
			}
			fmt.Fprintf(c.out, "Scanned: %d\n", scan.TotalScanned)
			fmt.Fprintf(c.out, "Stale records: %d\n", len(scan.Stale))
			fmt.Fprintf(c.out, "Records removed: %d\n", result.RecordsRemoved)
			fmt.Fprintf(c.out, "Skipped: %d\n", result.Skipped)
			if len(result.FailedIDs) > 0 {
				fmt.Fprintf(c.out, "Failed: %v\n", result.FailedIDs)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&ownerID, "owner", "", "owner id to scan (required)")
	cmd.Flags().BoolVar(&sweep.DryRun, "dry-run", false, "report without removing anything")
	cmd.Flags().BoolVar(&sweep.RemoveStaleRecords, "remove-stale", false, "delete records whose object is missing")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel existence checks (default 8)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

// NewEnvCommand prints the environment variables the configuration reads
func NewEnvCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Describe configuration environment variables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := config.Description()
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, desc)
			return nil
		},
	}
}

func parseFlagTime(name, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	t = t.UTC()
	return &t, nil
}

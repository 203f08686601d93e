package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tendant/simple-objectstore/pkg/objectstore"
)

// NewObjectsCommand creates the objects command group
func NewObjectsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "objects",
		Short: "Manage digital objects",
	}
	cmd.AddCommand(newObjectsListCommand())
	cmd.AddCommand(newObjectsCreateCommand())
	cmd.AddCommand(newObjectsRemoveCommand())
	return cmd
}

func newObjectsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List object ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStorage(cmd.Context(), cmd, newLogger(cmd))
			if err != nil {
				return err
			}
			defer store.Close()

			for _, oid := range store.ObjectIDs(cmd.Context()) {
				fmt.Fprintln(cmd.OutOrStdout(), oid)
			}
			return nil
		},
	}
}

func newObjectsCreateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create [oid]",
		Short: "Create an object; a UUID is generated when no oid is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			oid := uuid.New().String()
			if len(args) == 1 {
				oid = args[0]
			}

			store, err := openStorage(cmd.Context(), cmd, newLogger(cmd))
			if err != nil {
				return err
			}
			defer store.Close()

			obj, err := store.CreateObject(cmd.Context(), oid)
			if err != nil {
				return fmt.Errorf("create failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), obj.ID())
			return nil
		},
	}
}

func newObjectsRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <oid>",
		Short: "Remove an object with all its payloads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStorage(cmd.Context(), cmd, newLogger(cmd))
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.RemoveObject(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("remove failed: %w", err)
			}
			return nil
		},
	}
}

// NewPayloadsCommand creates the payloads command group
func NewPayloadsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payloads",
		Short: "Manage the payloads of an object",
	}
	cmd.AddCommand(newPayloadsListCommand())
	cmd.AddCommand(newPayloadsPutCommand())
	cmd.AddCommand(newPayloadsGetCommand())
	cmd.AddCommand(newPayloadsRemoveCommand())
	cmd.AddCommand(newPayloadsInfoCommand())
	return cmd
}

func newPayloadsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <oid>",
		Short: "List the payloads of an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStorage(ctx, cmd, newLogger(cmd))
			if err != nil {
				return err
			}
			defer store.Close()

			obj, err := store.GetObject(ctx, args[0])
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PID\tTYPE\tCONTENT TYPE\tLABEL")
			for _, pid := range obj.PayloadIDs() {
				payload, err := obj.GetPayload(pid)
				if err != nil {
					return err
				}
				meta, err := payload.Metadata(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", meta.ID, meta.Type, meta.ContentType, meta.Label)
			}
			return tw.Flush()
		},
	}
}

func newPayloadsPutCommand() *cobra.Command {
	var contentType string
	var label string
	var linked bool

	cmd := &cobra.Command{
		Use:   "put <oid> <pid> <file>",
		Short: "Store a file as a payload, replacing the content of an existing one",
		Long: `Store a file as a payload of an object. Use "-" to read standard input.

With --linked the file is referenced by path; it is copied into the store.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			oid, pid, path := args[0], args[1], args[2]

			store, err := openStorage(ctx, cmd, newLogger(cmd))
			if err != nil {
				return err
			}
			defer store.Close()

			obj, err := store.GetObject(ctx, oid)
			if err != nil {
				return err
			}

			var opts []objectstore.PayloadOption
			if contentType != "" {
				opts = append(opts, objectstore.WithContentType(contentType))
			}
			if label != "" {
				opts = append(opts, objectstore.WithLabel(label))
			}

			var payload *objectstore.Payload
			switch {
			case linked:
				payload, err = obj.CreateLinkedPayload(ctx, pid, path, opts...)
			default:
				var r io.Reader = cmd.InOrStdin()
				if path != "-" {
					f, err := os.Open(path)
					if err != nil {
						return fmt.Errorf("failed to open %s: %w", path, err)
					}
					defer f.Close()
					r = f
				}
				if _, getErr := obj.GetPayload(pid); getErr == nil {
					payload, err = obj.UpdatePayload(ctx, pid, r, opts...)
				} else {
					payload, err = obj.CreateStoredPayload(ctx, pid, r, opts...)
				}
			}
			if err != nil {
				return fmt.Errorf("put failed: %w", err)
			}

			meta, err := payload.Metadata(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s/%s %s %s\n", oid, meta.ID, meta.Type, meta.ContentType)
			return nil
		},
	}

	cmd.Flags().StringVar(&contentType, "content-type", "", "content type; detected from the content when empty")
	cmd.Flags().StringVar(&label, "label", "", "payload label (default: pid)")
	cmd.Flags().BoolVar(&linked, "linked", false, "store a linked payload from a local path")

	return cmd
}

func newPayloadsGetCommand() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "get <oid> <pid>",
		Short: "Write payload content to a file or standard output",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStorage(ctx, cmd, newLogger(cmd))
			if err != nil {
				return err
			}
			defer store.Close()

			obj, err := store.GetObject(ctx, args[0])
			if err != nil {
				return err
			}
			payload, err := obj.GetPayload(args[1])
			if err != nil {
				return err
			}
			rc, err := payload.Open(ctx)
			if err != nil {
				return err
			}
			defer rc.Close()

			var w io.Writer = cmd.OutOrStdout()
			if outputPath != "" {
				f, err := os.Create(outputPath)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", outputPath, err)
				}
				defer f.Close()
				w = f
			}
			if _, err := io.Copy(w, rc); err != nil {
				return fmt.Errorf("download failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path (default: standard output)")

	return cmd
}

func newPayloadsRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <oid> <pid>",
		Short: "Remove a payload from an object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStorage(ctx, cmd, newLogger(cmd))
			if err != nil {
				return err
			}
			defer store.Close()

			obj, err := store.GetObject(ctx, args[0])
			if err != nil {
				return err
			}
			if err := obj.RemovePayload(ctx, args[1]); err != nil {
				return fmt.Errorf("remove failed: %w", err)
			}
			return nil
		},
	}
}

func newPayloadsInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info <oid> <pid>",
		Short: "Show payload metadata",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStorage(ctx, cmd, newLogger(cmd))
			if err != nil {
				return err
			}
			defer store.Close()

			obj, err := store.GetObject(ctx, args[0])
			if err != nil {
				return err
			}
			payload, err := obj.GetPayload(args[1])
			if err != nil {
				return err
			}
			meta, err := payload.Metadata(ctx)
			if err != nil {
				return err
			}
			size, err := payload.Size(ctx)
			if err != nil {
				return err
			}
			modified, err := payload.LastModified(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:            %s\n", meta.ID)
			fmt.Fprintf(out, "Object:        %s\n", payload.ObjectID())
			fmt.Fprintf(out, "Type:          %s\n", meta.Type)
			fmt.Fprintf(out, "Label:         %s\n", meta.Label)
			fmt.Fprintf(out, "Content type:  %s\n", meta.ContentType)
			fmt.Fprintf(out, "Linked:        %t\n", meta.Linked)
			fmt.Fprintf(out, "Size:          %d\n", size)
			if !modified.IsZero() {
				fmt.Fprintf(out, "Last modified: %s\n", modified.Format("2006-01-02 15:04:05 MST"))
			}
			return nil
		},
	}
}

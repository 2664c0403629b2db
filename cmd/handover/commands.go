package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dukerupert/handover"
	"github.com/dukerupert/handover/client"
	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"
)

func newOpenCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "open <order>",
		Short: "Open or start the inspection for an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.openSession(cmd, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			writeSummary(out, s.Inspection())
			reportPending(out, s)
			return nil
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var phaseFlag string

	cmd := &cobra.Command{
		Use:   "status <order>",
		Short: "Show checklist progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var only handover.Phase
			if phaseFlag != "" {
				p, err := handover.ParsePhase(phaseFlag)
				if err != nil {
					return err
				}
				only = p
			}

			s, err := ctx.openSession(cmd, args[0])
			if err != nil {
				return err
			}
			in := s.Inspection()
			out := cmd.OutOrStdout()

			writeSummary(out, in)
			fmt.Fprintln(out, renderItems(in, only))
			reportPending(out, s)
			return nil
		},
	}
	cmd.Flags().StringVar(&phaseFlag, "phase", "", "Only show one phase (on_delivery or test_drive)")
	return cmd
}

func newMarkCommand(ctx *commandContext) *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   "mark <order> <item> <pending|passed|failed>",
		Short: "Set the status of a checklist item",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := handover.ParseItemStatus(args[2])
			if err != nil {
				return err
			}
			patch := handover.ItemPatch{Status: &status}
			if cmd.Flags().Changed("notes") {
				patch.Notes = &notes
			}

			s, err := ctx.openSession(cmd, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := s.UpdateItemByID(cmd.Context(), args[1], patch); err != nil {
				if s.Unsaved() {
					reportPending(out, s)
				}
				return err
			}

			in := s.Inspection()
			fmt.Fprintf(out, "%s marked %s (%d/%d done, %d failed)\n",
				args[1], status, in.CompletedItems, in.TotalItems, in.FailedItems)
			return nil
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "Notes for the item")
	return cmd
}

func newAttachCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <order> <item> <file>",
		Short: "Upload a photo or video as evidence for an item",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readLimited(args[2], handover.MaxMediaSize)
			if err != nil {
				return err
			}

			s, err := ctx.openSession(cmd, args[0])
			if err != nil {
				return err
			}
			p, err := s.NewCapture(args[1])
			if err != nil {
				return err
			}
			defer p.Close()

			att, err := p.UploadFile(cmd.Context(), filepath.Base(args[2]), data)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Attached %s %s to %s\n", att.Kind, att.FileName, args[1])
			if att.Link != "" {
				fmt.Fprintln(out, att.Link)
			}
			reportPending(out, s)
			return nil
		},
	}
}

func newSignCommand(ctx *commandContext) *cobra.Command {
	var signature, signatureFile string

	cmd := &cobra.Command{
		Use:   "sign <order> <on_delivery|test_drive>",
		Short: "Sign off a phase; signing the test drive completes the inspection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			phase, err := handover.ParsePhase(args[1])
			if err != nil {
				return err
			}
			sig, err := loadSignature(signature, signatureFile)
			if err != nil {
				return err
			}

			s, err := ctx.openSession(cmd, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			result, err := s.CompletePhase(cmd.Context(), phase, sig)
			if err != nil {
				reportPending(out, s)
				return err
			}

			fmt.Fprintf(out, "%s signed\n", phase.Title())
			if result != nil {
				writeResult(out, result)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&signature, "signature", "", "Signature text")
	cmd.Flags().StringVar(&signatureFile, "signature-file", "", "Signature image; PNG and JPEG are sent as data URIs")
	return cmd
}

func newFlushCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "flush <order>",
		Short: "Push unsaved changes and retry pending completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.openSession(cmd, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !s.Unsaved() && !s.CompletionPending() {
				fmt.Fprintln(out, "Nothing to flush")
				return nil
			}
			if err := s.Flush(cmd.Context()); err != nil {
				reportPending(out, s)
				return err
			}

			fmt.Fprintln(out, "Synchronized with server")
			if result := s.Result(); result != nil {
				writeResult(out, result)
			}
			return nil
		},
	}
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "history <order>",
		Short: "Show who changed and signed the inspection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api := client.New(ctx.serverURL())
			in, err := api.FindInspectionByOrderNumber(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			entries, err := api.FindHistory(cmd.Context(), in.ID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderHistory(entries))
			return nil
		},
	}
}

func loadSignature(text, path string) (string, error) {
	switch {
	case text != "" && path != "":
		return "", errors.New("use either --signature or --signature-file")
	case text != "":
		return text, nil
	case path == "":
		return "", errors.New("a signature is required (--signature or --signature-file)")
	}

	data, err := readLimited(path, 1<<20)
	if err != nil {
		return "", err
	}
	mt := mimetype.Detect(data)
	if mt.Is("image/png") || mt.Is("image/jpeg") {
		return "data:" + mt.String() + ";base64," + base64.StdEncoding.EncodeToString(data), nil
	}
	return string(data), nil
}

// readLimited reads a file, failing when it exceeds limit bytes.
func readLimited(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if int64(len(data)) > limit {
		return nil, handover.Errorf(handover.EFILETOOLARGE, "%s exceeds the %d MB limit", filepath.Base(path), limit>>20)
	}
	return data, nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"robline/internal/app"
	"robline/internal/catalog"
	"robline/internal/domain"
	"robline/internal/engine"
	"robline/internal/query"
)

const dateLayout = "2006-01-02"

func requestCmd() *cobra.Command {
	req := &cobra.Command{
		Use:     "request",
		Aliases: []string{"req"},
		Short:   "Manage robbing requests",
	}
	req.AddCommand(requestCreateCmd())
	req.AddCommand(requestListCmd())
	req.AddCommand(requestShowCmd())
	req.AddCommand(requestActionsCmd())
	req.AddCommand(requestTransitionCmd())
	req.AddCommand(requestDocCmd())
	req.AddCommand(requestStoreActionCmd())
	return req
}

func requestCreateCmd() *cobra.Command {
	var (
		in        engine.CreateInput
		validCofA string
		extension string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a robbing request",
		Long:  "Creates the request and moves it on automatically: to Pending SDS when the donor has a valid C of A, otherwise to Awaiting FTAM Approval.",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := currentActor()
			if err != nil {
				return err
			}
			if validCofA != "" {
				v, err := parseYesNo(validCofA)
				if err != nil {
					return err
				}
				in.DonorHasValidCertificate = &v
			}
			return withApp(cmd.Context(), "", func(ctx context.Context, a *app.App) error {
				if in.ExtensionApproval, err = documentArg(ctx, a, extension); err != nil {
					return err
				}
				r, err := a.Engine.CreateRequest(ctx, actor, in)
				if err != nil {
					return err
				}
				return printRequest(r)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.DonorAircraft, "donor", "", "donor aircraft registration")
	f.StringVar(&in.RecipientAircraft, "recipient", "", "recipient aircraft registration")
	f.StringVar(&validCofA, "valid-cofa", "", "donor has a valid C of A (yes|no)")
	f.StringVar(&in.Reason, "reason", "", "reason for the robbing")
	f.StringVar(&in.Priority, "priority", "", "Low, Medium or High (default Medium)")
	f.StringVar(&in.WorkOrderNumber, "work-order", "", "work order number")
	f.StringVar(&in.Component.Description, "description", "", "component description")
	f.StringVar(&in.Component.PartNumber, "part-number", "", "component part number")
	f.StringVar(&in.Component.SerialNumber, "serial-number", "", "component serial number")
	f.StringVar(&in.Component.ATAChapter, "ata", "", "ATA chapter")
	f.StringVar(&in.RequesterName, "requester", "", "requester name (defaults to --actor-name)")
	f.StringVar(&extension, "extension-approval", "", "extension approval file or document handle")
	return cmd
}

func requestListCmd() *cobra.Command {
	var (
		statuses               []string
		search, sortBy, dir, g string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts engine.ListOptions
			for _, raw := range statuses {
				s, err := domain.ParseStatus(raw)
				if err != nil {
					return err
				}
				opts.Statuses = append(opts.Statuses, s)
			}
			opts.Search = search
			if sortBy != "" {
				field, err := query.ParseSortField(sortBy)
				if err != nil {
					return err
				}
				opts.SortField = field
			}
			direction, err := query.ParseDirection(dir)
			if err != nil {
				return err
			}
			opts.Direction = direction
			if g != "" {
				if opts.Group, err = query.ParseGroupKey(g); err != nil {
					return err
				}
			}
			return withApp(cmd.Context(), "", func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.ListRequests(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					if opts.Group != "" {
						return printJSON(query.GroupViews(res.Groups))
					}
					return printJSON(query.Views(res.Requests))
				}
				if opts.Group != "" {
					printGroups(res.Groups)
					return nil
				}
				printRequests(res.Requests)
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&statuses, "status", nil, "status filter (repeatable)")
	cmd.Flags().StringVar(&search, "search", "", "search id, aircraft, part/serial number, description, work order")
	cmd.Flags().StringVar(&sortBy, "sort", "", "sort field, e.g. created_date, target_date, priority")
	cmd.Flags().StringVar(&dir, "direction", "asc", "asc or desc")
	cmd.Flags().StringVar(&g, "group", "", "group by donor_aircraft, recipient_aircraft, component or request")
	return cmd
}

func requestShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a request with its status history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), "", func(ctx context.Context, a *app.App) error {
				r, err := a.Engine.GetRequest(ctx, args[0])
				if err != nil {
					return err
				}
				return printRequest(r)
			})
		},
	}
}

func requestActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions <id>",
		Short: "List transitions --actor-role may take next",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := currentActor()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), "", func(ctx context.Context, a *app.App) error {
				actions, err := a.Engine.AvailableActions(ctx, args[0], actor.Role)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(actions)
				}
				if len(actions) == 0 {
					fmt.Printf("no actions for %s\n", actor.Role)
					return nil
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Next", "Action", "Description"})
				for _, t := range actions {
					tw.AppendRow(table.Row{t.Next, t.Label, t.Description})
				}
				tw.Render()
				return nil
			})
		},
	}
}

type transitionFlags struct {
	comments    string
	payloadFile string

	approvalDoc     string
	sdsRef, sdsDoc  string
	arRef, arDoc    string
	componentStatus string
	removalDate     string
	caamRef         string
	caamDoc         string
	sLabelRef       string
	sLabelDoc       string
	targetDate      string
	completionWO    string
	evidence        string
	installedPN     string
	installedSN     string
	completionDoc   string
}

// payload merges the flags over the optional JSON payload file. Document
// flags upload local files first.
func (f transitionFlags) payload(ctx context.Context, a *app.App) (engine.TransitionPayload, error) {
	var p engine.TransitionPayload
	if f.payloadFile != "" {
		data, err := os.ReadFile(f.payloadFile)
		if err != nil {
			return p, err
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return p, fmt.Errorf("payload file: %w", err)
		}
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&p.SDSReference, f.sdsRef)
	set(&p.ARReference, f.arRef)
	set(&p.CAAMForm1Reference, f.caamRef)
	set(&p.SLabelReference, f.sLabelRef)
	set(&p.CompletionWorkOrder, f.completionWO)
	set(&p.InstalledPartNumber, f.installedPN)
	set(&p.InstalledSerialNumber, f.installedSN)
	if f.componentStatus != "" {
		p.ComponentStatus = domain.ComponentStatus(f.componentStatus)
	}
	var err error
	if p.RemovalDate, err = dateArg("removal-date", f.removalDate, p.RemovalDate); err != nil {
		return p, err
	}
	if p.TargetDate, err = dateArg("target-date", f.targetDate, p.TargetDate); err != nil {
		return p, err
	}
	docs := []struct {
		arg string
		dst **domain.DocumentRef
	}{
		{f.approvalDoc, &p.ApprovalDocument},
		{f.sdsDoc, &p.SDSDocument},
		{f.arDoc, &p.ARDocument},
		{f.caamDoc, &p.CAAMForm1Document},
		{f.sLabelDoc, &p.SLabelDocument},
		{f.evidence, &p.SupportingEvidence},
		{f.completionDoc, &p.CompletionEvidence},
	}
	for _, d := range docs {
		if d.arg == "" {
			continue
		}
		if *d.dst, err = documentArg(ctx, a, d.arg); err != nil {
			return p, err
		}
	}
	return p, nil
}

func requestTransitionCmd() *cobra.Command {
	var f transitionFlags
	cmd := &cobra.Command{
		Use:   "transition <id> <status>",
		Short: "Move a request to its next status",
		Long: `Moves the request when --actor-role may take the edge and the data the
target status needs is present. See 'rl catalog' for the edges.`,
		Example: `  rl request transition CR-2025-0001 "Pending AR" --actor-role "CAMO Planning" --sds-ref SDS-01 --sds-doc ./sds.pdf
  rl request transition CR-2025-0001 "Normalization Planned" --actor-role "CAMO Planning" --target-date 2025-04-01 --completion-wo WO.5000001`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := currentActor()
			if err != nil {
				return err
			}
			target, err := domain.ParseStatus(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), "", func(ctx context.Context, a *app.App) error {
				p, err := f.payload(ctx, a)
				if err != nil {
					return err
				}
				r, err := a.Engine.Transition(ctx, actor, engine.TransitionOptions{
					RequestID: args[0],
					Target:    target,
					Payload:   p,
					Comments:  f.comments,
				})
				if err != nil {
					return err
				}
				return printRequest(r)
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.comments, "comments", "", "comments for the history entry")
	fl.StringVar(&f.payloadFile, "payload-file", "", "JSON transition payload, flags override it")
	fl.StringVar(&f.approvalDoc, "approval-doc", "", "FTAM approval document")
	fl.StringVar(&f.sdsRef, "sds-ref", "", "SDS reference")
	fl.StringVar(&f.sdsDoc, "sds-doc", "", "SDS document")
	fl.StringVar(&f.arRef, "ar-ref", "", "acceptance report reference")
	fl.StringVar(&f.arDoc, "ar-doc", "", "acceptance report document")
	fl.StringVar(&f.componentStatus, "component-status", "", "Serviceable or Unserviceable")
	fl.StringVar(&f.removalDate, "removal-date", "", "removal date (YYYY-MM-DD), defaults to now")
	fl.StringVar(&f.caamRef, "caam-ref", "", "CAAM Form 1 reference")
	fl.StringVar(&f.caamDoc, "caam-doc", "", "CAAM Form 1 document")
	fl.StringVar(&f.sLabelRef, "s-label-ref", "", "S-label reference")
	fl.StringVar(&f.sLabelDoc, "s-label-doc", "", "S-label document")
	fl.StringVar(&f.targetDate, "target-date", "", "normalization target date (YYYY-MM-DD)")
	fl.StringVar(&f.completionWO, "completion-wo", "", "normalization work order")
	fl.StringVar(&f.evidence, "evidence", "", "supporting evidence document")
	fl.StringVar(&f.installedPN, "installed-pn", "", "part number installed on the donor")
	fl.StringVar(&f.installedSN, "installed-sn", "", "serial number installed on the donor")
	fl.StringVar(&f.completionDoc, "completion-doc", "", "normalization completion evidence")
	return cmd
}

func requestDocCmd() *cobra.Command {
	var reference, file string
	var clear bool
	cmd := &cobra.Command{
		Use:   "doc <id> <slot>",
		Short: "Update a document reference without changing status",
		Long:  "Slots: sds, acceptance_report, caam_form_1, s_label, normalization_evidence, extension_approval.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := currentActor()
			if err != nil {
				return err
			}
			slot, err := domain.ParseSlot(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), "", func(ctx context.Context, a *app.App) error {
				var ref *string
				if cmd.Flags().Changed("reference") {
					ref = &reference
				}
				doc, err := documentArg(ctx, a, file)
				if err != nil {
					return err
				}
				if clear {
					doc = &domain.DocumentRef{}
				}
				r, err := a.Engine.UpdateDocumentReference(ctx, actor, args[0], slot, ref, doc)
				if err != nil {
					return err
				}
				return printRequest(r)
			})
		},
	}
	cmd.Flags().StringVar(&reference, "reference", "", "new reference text")
	cmd.Flags().StringVar(&file, "file", "", "document file or handle")
	cmd.Flags().BoolVar(&clear, "clear-document", false, "remove the document from the slot")
	return cmd
}

func requestStoreActionCmd() *cobra.Command {
	var p engine.MaterialStorePayload
	var file string
	cmd := &cobra.Command{
		Use:   "store-action <id> <SubmitSLabel|ReportUnserviceable>",
		Short: "Material Store action on a removed component",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := currentActor()
			if err != nil {
				return err
			}
			action, err := engine.ParseMaterialStoreAction(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), "", func(ctx context.Context, a *app.App) error {
				if p.Document, err = documentArg(ctx, a, file); err != nil {
					return err
				}
				r, err := a.Engine.MaterialStoreAction(ctx, actor, args[0], action, p)
				if err != nil {
					return err
				}
				return printRequest(r)
			})
		},
	}
	cmd.Flags().StringVar(&p.Reference, "reference", "", "S-label reference")
	cmd.Flags().StringVar(&file, "file", "", "S-label document file or handle")
	cmd.Flags().StringVar(&p.Reason, "reason", "", "why the component is unserviceable")
	cmd.Flags().StringVar(&p.Notes, "notes", "", "notes")
	return cmd
}

// documentArg uploads a local file, or passes an existing handle through.
func documentArg(ctx context.Context, a *app.App, arg string) (*domain.DocumentRef, error) {
	if arg == "" {
		return nil, nil
	}
	if strings.HasPrefix(arg, "documents/") {
		if _, err := os.Stat(arg); err != nil {
			return &domain.DocumentRef{Handle: arg}, nil
		}
	}
	f, err := os.Open(arg)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ref, err := a.Engine.UploadDocument(ctx, filepath.Base(arg), mime.TypeByExtension(filepath.Ext(arg)), f)
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func dateArg(flag, raw string, fallback *time.Time) (*time.Time, error) {
	if raw == "" {
		return fallback, nil
	}
	for _, layout := range []string{dateLayout, time.RFC3339} {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("--%s: expected YYYY-MM-DD or RFC3339, got %q", flag, raw)
}

func parseYesNo(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "y", "true":
		return true, nil
	case "no", "n", "false":
		return false, nil
	}
	return false, fmt.Errorf("expected yes or no, got %q", raw)
}

func printRequests(reqs []domain.RobbingRequest) {
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Status", "Priority", "Donor", "Recipient", "Component", "P/N", "S/N", "Created"})
	for _, r := range reqs {
		tw.AppendRow(table.Row{
			r.RequestID, r.Status, r.Priority, r.DonorAircraft, r.RecipientAircraft,
			r.Component.Description, r.Component.PartNumber, r.Component.SerialNumber,
			r.CreatedDate.Local().Format(dateLayout),
		})
	}
	tw.Render()
}

func printRequest(r domain.RobbingRequest) error {
	if viper.GetBool("json") {
		return printJSON(r)
	}
	fmt.Printf("%s  %s (%s)\n", r.RequestID, r.Status, catalog.DescriptionOf(r.Status))
	fmt.Printf("  %s: %s -> %s, P/N %s S/N %s, priority %s\n",
		r.Component.Description, r.DonorAircraft, r.RecipientAircraft,
		r.Component.PartNumber, r.Component.SerialNumber, r.Priority)
	if r.Normalization.TargetDate != nil {
		fmt.Printf("  normalization target %s\n", r.Normalization.TargetDate.Local().Format(dateLayout))
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"When", "Status", "By", "Role", "Comments"})
	for _, h := range r.StatusHistory {
		tw.AppendRow(table.Row{h.Timestamp.Local().Format("2006-01-02 15:04"), h.Status, h.ActingUser, h.ActingRole, h.Comments})
	}
	tw.Render()
	return nil
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
)

var scanCmd = &cobra.Command{
	Use:   "scan <region>",
	Short: "Scan a region for supply-chain risk",
	Long: `Investigate political, weather and logistics risk for a region and
print the merged risk report as JSON.

Examples:
  sentinell scan Taiwan
  sentinell scan "Ho Chi Minh"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := log.Logger.WithContext(cmd.Context())
		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.supervisor.Scan(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var (
	purchasePart   string
	purchaseQty    int
	purchaseRisk   string
	purchaseRegion string
)

var purchaseCmd = &cobra.Command{
	Use:   "purchase",
	Short: "Start a procurement workflow",
	Long: `Start a procurement workflow. Orders below the approval threshold are
placed immediately; larger ones print a pending approval request.

Examples:
  sentinell purchase --part Logic-Core-CPU --qty 50 --risk CRITICAL --region Taiwan
  sentinell purchase --part Memory-DDR5 --qty 10`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := log.Logger.WithContext(cmd.Context())
		req := contractx.PurchaseRequest{PartID: purchasePart, Quantity: purchaseQty, Region: purchaseRegion}
		if purchaseRisk != "" {
			lvl, err := contractx.ParseRiskLevel(purchaseRisk)
			if err != nil {
				return err
			}
			req.RiskLevel = lvl
		}

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		out, err := a.procurement.Purchase(ctx, req)
		if out.WorkflowID != "" {
			if perr := printJSON(out); perr != nil {
				return perr
			}
		}
		return err
	},
}

var (
	approveReject bool
	approveActor  string
)

var approveCmd = &cobra.Command{
	Use:   "approve <approval-id>",
	Short: "Resolve a pending approval request",
	Long: `Approve, or with --reject deny, a pending approval request. Approval
resumes the workflow and places the order.

Examples:
  sentinell approve APR-6f1c --actor ops@example.com
  sentinell approve APR-6f1c --actor ops@example.com --reject`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := log.Logger.WithContext(cmd.Context())
		decision := contractx.DecisionApprove
		if approveReject {
			decision = contractx.DecisionReject
		}

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		out, err := a.procurement.Resolve(ctx, args[0], decision, approveActor)
		if out.WorkflowID != "" {
			if perr := printJSON(out); perr != nil {
				return perr
			}
		}
		return err
	},
}

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "List pending approval requests",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := log.Logger.WithContext(cmd.Context())
		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		pending, err := a.procurement.Pending(ctx)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Println("No pending approval requests")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tWORKFLOW\tSUPPLIER\tPART\tQTY\tTOTAL\tAGE")
		for _, req := range pending {
			q := req.OrderDraft.Quote
			total := fmt.Sprintf("%.2f %s", q.Total(), q.Currency)
			if req.OrderDraft.CanonicalKnown {
				total = fmt.Sprintf("%.2f", req.OrderDraft.CanonicalTotal)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				req.ID, req.WorkflowID, q.SupplierID, q.PartID, q.Quantity, total,
				time.Since(req.RequestedAt).Round(time.Second))
		}
		return w.Flush()
	},
}

func init() {
	purchaseCmd.Flags().StringVar(&purchasePart, "part", "", "part id (required)")
	purchaseCmd.Flags().IntVar(&purchaseQty, "qty", 0, "quantity (required)")
	purchaseCmd.Flags().StringVar(&purchaseRisk, "risk", "", "risk level from a scan: LOW, MEDIUM or CRITICAL")
	purchaseCmd.Flags().StringVar(&purchaseRegion, "region", "", "region the part is sourced from")
	_ = purchaseCmd.MarkFlagRequired("part")
	_ = purchaseCmd.MarkFlagRequired("qty")

	approveCmd.Flags().BoolVar(&approveReject, "reject", false, "reject instead of approving")
	approveCmd.Flags().StringVar(&approveActor, "actor", os.Getenv("USER"), "who is resolving the request")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

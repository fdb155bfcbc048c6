package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	submitTarget      string
	submitTitle       string
	submitDescription string
	submitDuration    string
	submitRequestedBy string
	submitParams      []string

	decisionApprover string
	decisionReason   string

	feedbackRating  int
	feedbackHelpful bool
	feedbackComment string

	observeTarget string
	observeValue  float64
)

func init() {
	submitCmd.Flags().StringVar(&submitTarget, "target", "", "component the action operates on (required)")
	submitCmd.Flags().StringVar(&submitTitle, "title", "", "short human-readable summary (required)")
	submitCmd.Flags().StringVar(&submitDescription, "description", "", "longer description of the action")
	submitCmd.Flags().StringVar(&submitDuration, "duration", "", "estimated duration, e.g. 2m30s")
	submitCmd.Flags().StringVar(&submitRequestedBy, "requested-by", "", "proposer identity")
	submitCmd.Flags().StringArrayVar(&submitParams, "param", nil, "action parameter as key=value (repeatable)")

	approveCmd.Flags().StringVar(&decisionApprover, "approver", "", "approver identity (required)")
	approveCmd.Flags().StringVar(&decisionReason, "reason", "", "approval reason")
	rejectCmd.Flags().StringVar(&decisionApprover, "approver", "", "approver identity (required)")
	rejectCmd.Flags().StringVar(&decisionReason, "reason", "", "rejection reason")
	cancelCmd.Flags().StringVar(&decisionReason, "reason", "", "cancellation reason")

	feedbackCmd.Flags().IntVar(&feedbackRating, "rating", 0, "rating from 1 (harmful) to 5 (resolved the issue)")
	feedbackCmd.Flags().BoolVar(&feedbackHelpful, "helpful", false, "whether the action helped")
	feedbackCmd.Flags().StringVar(&feedbackComment, "comment", "", "free-form comment")

	observeCmd.Flags().StringVar(&observeTarget, "target", "", "component the sample was measured on (required)")
	observeCmd.Flags().Float64Var(&observeValue, "value", 0, "sample value (required)")
}

// submitCmd submits a remediation proposal
var submitCmd = &cobra.Command{
	Use:   "submit <kind>",
	Short: "Submit a remediation proposal",
	Long: `Submit a remediation proposal for risk classification and routing.

Examples:
  # Propose restarting a component
  remedyctl submit restart-component --target api-gateway --title "Restart wedged gateway"

  # Propose scaling with parameters
  remedyctl submit scale-component --target workers --title "Scale out" \
    --param replicas=5 --duration 1m`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func runSubmit(cmd *cobra.Command, args []string) error {
	if submitTarget == "" || submitTitle == "" {
		return fmt.Errorf("--target and --title are required")
	}

	params := map[string]any{}
	for _, p := range submitParams {
		key, value, found := strings.Cut(p, "=")
		if !found || key == "" {
			return fmt.Errorf("invalid --param %q, expected key=value", p)
		}
		params[key] = value
	}

	payload := map[string]any{
		"kind":   args[0],
		"target": submitTarget,
		"title":  submitTitle,
	}
	if submitDescription != "" {
		payload["description"] = submitDescription
	}
	if submitDuration != "" {
		payload["estimated_duration"] = submitDuration
	}
	if submitRequestedBy != "" {
		payload["requested_by"] = submitRequestedBy
	}
	if len(params) > 0 {
		payload["params"] = params
	}

	body, status, err := doPost("/api/v1/proposals", payload,
		http.StatusCreated, http.StatusUnprocessableEntity)
	if err != nil {
		return err
	}
	if status == http.StatusUnprocessableEntity {
		fmt.Fprintln(os.Stderr, "[remedyctl] proposal blocked by policy")
	}
	return printJSON(body)
}

// recordsCmd lists or shows remediation records
var recordsCmd = &cobra.Command{
	Use:   "records [id]",
	Short: "List remediation records or show one by id",
	Long: `List all remediation records, or show the full record for an id.

Examples:
  # List every record
  remedyctl records

  # Show one record
  remedyctl records 6f1b2c3d-...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRecords,
}

// recordSummary is the subset of a record the list view needs.
type recordSummary struct {
	ID       string `json:"id"`
	State    string `json:"state"`
	Proposal struct {
		Kind   string `json:"kind"`
		Target string `json:"target"`
		Title  string `json:"title"`
	} `json:"proposal"`
	Assessment struct {
		Tier  string  `json:"tier"`
		Score float64 `json:"score"`
	} `json:"assessment"`
}

func runRecords(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		body, err := doGet("/api/v1/records/" + args[0])
		if err != nil {
			return err
		}
		return printJSON(body)
	}

	body, err := doGet("/api/v1/records")
	if err != nil {
		return err
	}
	var records []recordSummary
	if err := json.Unmarshal(body, &records); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	printRecordTable(records)
	return nil
}

// approvalsCmd lists pending approvals
var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "List proposals waiting for approval",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := doGet("/api/v1/approvals")
		if err != nil {
			return err
		}
		var records []recordSummary
		if err := json.Unmarshal(body, &records); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		if len(records) == 0 {
			fmt.Println("No pending approvals.")
			return nil
		}
		printRecordTable(records)
		return nil
	},
}

func printRecordTable(records []recordSummary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tTIER\tKIND\tTARGET\tTITLE")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.State, r.Assessment.Tier, r.Proposal.Kind, r.Proposal.Target, r.Proposal.Title)
	}
	_ = w.Flush()
}

// approveCmd approves a pending proposal
var approveCmd = &cobra.Command{
	Use:   "approve <record-id>",
	Short: "Approve a pending proposal",
	Long: `Approve a proposal waiting for approval, which starts execution.

Examples:
  remedyctl approve 6f1b2c3d-... --approver alice --reason "verified in staging"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDecision(args[0], "approve")
	},
}

// rejectCmd rejects a pending proposal
var rejectCmd = &cobra.Command{
	Use:   "reject <record-id>",
	Short: "Reject a pending proposal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDecision(args[0], "reject")
	},
}

func runDecision(recordID, verb string) error {
	if decisionApprover == "" {
		return fmt.Errorf("--approver is required")
	}

	payload := map[string]any{
		"approver_id": decisionApprover,
		"reason":      decisionReason,
	}
	body, _, err := doPost("/api/v1/records/"+recordID+"/"+verb, payload, http.StatusOK)
	if err != nil {
		return err
	}
	return printJSON(body)
}

// cancelCmd cancels an executing action
var cancelCmd = &cobra.Command{
	Use:   "cancel <record-id>",
	Short: "Cancel an executing action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := map[string]any{"reason": decisionReason}
		body, _, err := doPost("/api/v1/records/"+args[0]+"/cancel", payload, http.StatusOK)
		if err != nil {
			return err
		}
		return printJSON(body)
	},
}

// feedbackCmd attaches operator feedback to a finished record
var feedbackCmd = &cobra.Command{
	Use:   "feedback <record-id>",
	Short: "Attach operator feedback to a finished record",
	Long: `Attach a 1-5 rating to a finished remediation so future risk
classification can learn from it.

Examples:
  remedyctl feedback 6f1b2c3d-... --rating 5 --helpful --comment "fixed it"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := map[string]any{
			"rating":  feedbackRating,
			"helpful": feedbackHelpful,
		}
		if feedbackComment != "" {
			payload["comment"] = feedbackComment
		}
		_, _, err := doPost("/api/v1/records/"+args[0]+"/feedback", payload, http.StatusNoContent)
		if err != nil {
			return err
		}
		fmt.Println("Feedback recorded.")
		return nil
	},
}

// insightsCmd shows aggregate learning statistics
var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Show aggregate learning statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := doGet("/api/v1/insights")
		if err != nil {
			return err
		}
		return printJSON(body)
	},
}

// patternsCmd shows detected failure patterns
var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Show detected failure patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := doGet("/api/v1/patterns")
		if err != nil {
			return err
		}
		return printJSON(body)
	},
}

// observeCmd pushes a metric sample into the degradation detector
var observeCmd = &cobra.Command{
	Use:   "observe <metric>",
	Short: "Push a metric sample for degradation detection",
	Long: `Push one metric observation into the pattern detector's window.

Examples:
  remedyctl observe latency_p99_ms --target api-gateway --value 512.4`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if observeTarget == "" {
			return fmt.Errorf("--target is required")
		}
		payload := map[string]any{
			"target": observeTarget,
			"metric": args[0],
			"value":  observeValue,
		}
		_, _, err := doPost("/api/v1/observations", payload, http.StatusAccepted)
		if err != nil {
			return err
		}
		fmt.Println("Observation recorded.")
		return nil
	},
}

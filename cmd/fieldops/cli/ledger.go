package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/petrofield/fieldops/internal/agreements"
)

// LedgerVerifier recomputes sub-agreement balances from the journal.
type LedgerVerifier interface {
	Verify(ctx context.Context, agreementID string, repair bool) ([]agreements.Drift, error)
}

// LedgerOpsCLI runs ledger integrity checks synchronously.
type LedgerOpsCLI struct {
	verifier LedgerVerifier
}

// NewLedgerOpsCLI constructs the helper.
func NewLedgerOpsCLI(verifier LedgerVerifier) (*LedgerOpsCLI, error) {
	if verifier == nil {
		return nil, fmt.Errorf("ledger cli: verifier is required")
	}
	return &LedgerOpsCLI{verifier: verifier}, nil
}

// LedgerVerifyOptions defines available flags for the ledger verify command.
type LedgerVerifyOptions struct {
	AgreementID string
	Repair      bool
	JSONOutput  bool
	Stdout      io.Writer
	Stderr      io.Writer
}

// LedgerVerifySummary describes the JSON response for ledger verify.
type LedgerVerifySummary struct {
	OK       bool               `json:"ok"`
	Repaired int                `json:"repaired"`
	Drift    []agreements.Drift `json:"drift"`
}

// VerifyCommand checks balances and prints the outcome. It exits with 10
// when unrepaired drift remains.
func (c *LedgerOpsCLI) VerifyCommand(ctx context.Context, opts LedgerVerifyOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	drifts, err := c.verifier.Verify(ctx, opts.AgreementID, opts.Repair)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "ledger verify: %v\n", err)
		return 1
	}
	sort.Slice(drifts, func(i, j int) bool { return drifts[i].AgreementID < drifts[j].AgreementID })

	summary := LedgerVerifySummary{Drift: drifts}
	for _, d := range drifts {
		if d.Repaired {
			summary.Repaired++
		}
	}
	summary.OK = summary.Repaired == len(drifts)
	if summary.Drift == nil {
		summary.Drift = []agreements.Drift{}
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "ledger verify: encode json: %v\n", err)
			return 1
		}
	} else {
		renderLedgerHuman(opts.Stdout, opts.AgreementID, summary)
	}
	if !summary.OK {
		return 10
	}
	return 0
}

func renderLedgerHuman(out io.Writer, agreementID string, summary LedgerVerifySummary) {
	scope := "all sub-agreements"
	if agreementID != "" {
		scope = "sub-agreement " + agreementID
	}
	_, _ = fmt.Fprintf(out, "Ledger verification for %s\n", scope)
	if len(summary.Drift) == 0 {
		_, _ = fmt.Fprintln(out, "Balances match the journal.")
		return
	}
	_, _ = fmt.Fprintf(out, "%d drifted balance(s):\n", len(summary.Drift))
	for _, d := range summary.Drift {
		state := "unrepaired"
		if d.Repaired {
			state = "repaired"
		}
		_, _ = fmt.Fprintf(out, " - %s balance %s expected %s (%s)\n",
			d.AgreementID, d.Balance.StringFixed(2), d.Expected.StringFixed(2), state)
	}
}

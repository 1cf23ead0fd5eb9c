package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/compound/template"
)

// ResolvedLine is one template line after value resolution.
type ResolvedLine struct {
	AccountID int64           `json:"account_id"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

// TemplateReport is printed by the template check command.
type TemplateReport struct {
	Canonical string         `json:"canonical"`
	Lines     []ResolvedLine `json:"lines,omitempty"`
}

// CheckTemplate parses a JSON or YAML template from in and writes its
// canonical form to out. When overrides is non-nil the template is also
// resolved against its defaults merged with overrides, so missing keys are
// reported before a definition is stored.
func CheckTemplate(in io.Reader, out io.Writer, overrides map[string]string) error {
	raw, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("template cli: read: %w", err)
	}
	tpl, err := template.Parse(string(raw))
	if err != nil {
		return err
	}
	canonical, err := template.Marshal(tpl)
	if err != nil {
		return err
	}
	report := TemplateReport{Canonical: canonical}
	if overrides != nil {
		drafts, err := template.BuildLines(tpl, template.MergeContext(tpl.DefaultContext, overrides))
		if err != nil {
			return err
		}
		for _, d := range drafts {
			report.Lines = append(report.Lines, ResolvedLine{AccountID: d.AccountID, Debit: d.Debit, Credit: d.Credit})
		}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// Package template parses compound journal templates and resolves their
// value rules into journal lines.
package template

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// RuleKind tags the value resolution variant.
type RuleKind string

const (
	// RuleFixed resolves to a literal amount.
	RuleFixed RuleKind = "fixed"
	// RuleContext resolves to the amount stored under Key in the context.
	RuleContext RuleKind = "context"
)

// Rule describes how a line amount is obtained at execution time.
type Rule struct {
	Kind   RuleKind
	Amount decimal.Decimal
	Key    string
}

// Fixed builds a literal amount rule.
func Fixed(amount decimal.Decimal) *Rule {
	return &Rule{Kind: RuleFixed, Amount: canonical(amount)}
}

// FromContext builds a context lookup rule.
func FromContext(key string) *Rule {
	return &Rule{Kind: RuleContext, Key: key}
}

// LineTemplate is one line of a compound journal.
type LineTemplate struct {
	AccountID    int64
	Description  string
	CostCenterID *int64
	Debit        *Rule
	Credit       *Rule
}

// Template is the executable plan stored on a compound definition.
type Template struct {
	Description     string
	DefaultBranchID int64
	DefaultStatus   journals.Status
	DefaultContext  map[string]string
	Lines           []LineTemplate
}

type wireRule struct {
	Type   string      `json:"type" yaml:"type"`
	Amount json.Number `json:"amount,omitempty" yaml:"amount,omitempty"`
	Key    string      `json:"key,omitempty" yaml:"key,omitempty"`
}

type wireLine struct {
	AccountID    int64     `json:"account_id" yaml:"account_id"`
	Description  string    `json:"description,omitempty" yaml:"description,omitempty"`
	CostCenterID *int64    `json:"cost_center_id,omitempty" yaml:"cost_center_id,omitempty"`
	Debit        *wireRule `json:"debit,omitempty" yaml:"debit,omitempty"`
	Credit       *wireRule `json:"credit,omitempty" yaml:"credit,omitempty"`
}

type wireTemplate struct {
	Description     string            `json:"description,omitempty" yaml:"description,omitempty"`
	DefaultBranchID int64             `json:"default_branch_id,omitempty" yaml:"default_branch_id,omitempty"`
	DefaultStatus   string            `json:"default_status,omitempty" yaml:"default_status,omitempty"`
	DefaultContext  map[string]string `json:"default_context,omitempty" yaml:"default_context,omitempty"`
	Lines           []wireLine        `json:"lines" yaml:"lines"`
}

func parseError(format string, args ...any) error {
	return shared.Errorf(shared.KindTemplateParse, format, args...)
}

// Parse decodes template text. Text starting with '{' is read as JSON,
// anything else as YAML.
func Parse(raw string) (Template, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Template{}, parseError("template is empty")
	}
	var w wireTemplate
	if strings.HasPrefix(text, "{") {
		dec := json.NewDecoder(strings.NewReader(text))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&w); err != nil {
			return Template{}, parseError("malformed JSON: %v", err)
		}
		if _, err := dec.Token(); !errors.Is(err, io.EOF) {
			return Template{}, parseError("malformed JSON: trailing data")
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewBufferString(text))
		dec.KnownFields(true)
		if err := dec.Decode(&w); err != nil {
			return Template{}, parseError("malformed YAML: %v", err)
		}
	}
	return w.toTemplate()
}

func (w wireTemplate) toTemplate() (Template, error) {
	status := journals.Status(strings.ToUpper(strings.TrimSpace(w.DefaultStatus)))
	switch status {
	case "", journals.StatusDraft, journals.StatusApproved, journals.StatusPosted:
	default:
		return Template{}, parseError("unknown default status %q", w.DefaultStatus)
	}
	if len(w.Lines) == 0 {
		return Template{}, parseError("template has no lines")
	}
	t := Template{
		Description:     w.Description,
		DefaultBranchID: w.DefaultBranchID,
		DefaultStatus:   status,
		Lines:           make([]LineTemplate, 0, len(w.Lines)),
	}
	if len(w.DefaultContext) > 0 {
		t.DefaultContext = w.DefaultContext
	}
	for idx, wl := range w.Lines {
		line, err := wl.toLine()
		if err != nil {
			return Template{}, shared.WithLine(err, idx)
		}
		t.Lines = append(t.Lines, line)
	}
	return t, nil
}

func (wl wireLine) toLine() (LineTemplate, error) {
	if wl.AccountID <= 0 {
		return LineTemplate{}, parseError("line is missing account_id")
	}
	if (wl.Debit == nil) == (wl.Credit == nil) {
		if wl.Debit == nil {
			return LineTemplate{}, parseError("line sets neither debit nor credit rule")
		}
		return LineTemplate{}, parseError("line sets both debit and credit rules")
	}
	line := LineTemplate{AccountID: wl.AccountID, Description: wl.Description, CostCenterID: wl.CostCenterID}
	var err error
	if wl.Debit != nil {
		line.Debit, err = wl.Debit.toRule()
	} else {
		line.Credit, err = wl.Credit.toRule()
	}
	return line, err
}

func (wr wireRule) toRule() (*Rule, error) {
	switch RuleKind(strings.ToLower(strings.TrimSpace(wr.Type))) {
	case RuleFixed:
		amount, err := decimal.NewFromString(strings.TrimSpace(wr.Amount.String()))
		if err != nil {
			return nil, parseError("fixed rule amount %q is not a number", wr.Amount.String())
		}
		return Fixed(amount), nil
	case RuleContext:
		key := strings.TrimSpace(wr.Key)
		if key == "" {
			return nil, parseError("context rule requires a key")
		}
		return FromContext(key), nil
	default:
		return nil, parseError("unknown rule type %q", wr.Type)
	}
}

// Marshal renders t in the canonical JSON form accepted by Parse.
func Marshal(t Template) (string, error) {
	w := wireTemplate{
		Description:     t.Description,
		DefaultBranchID: t.DefaultBranchID,
		DefaultStatus:   string(t.DefaultStatus),
		DefaultContext:  t.DefaultContext,
		Lines:           make([]wireLine, 0, len(t.Lines)),
	}
	for _, line := range t.Lines {
		w.Lines = append(w.Lines, wireLine{
			AccountID:    line.AccountID,
			Description:  line.Description,
			CostCenterID: line.CostCenterID,
			Debit:        toWire(line.Debit),
			Credit:       toWire(line.Credit),
		})
	}
	out, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("template: marshal: %w", err)
	}
	return string(out), nil
}

func toWire(r *Rule) *wireRule {
	if r == nil {
		return nil
	}
	switch r.Kind {
	case RuleFixed:
		return &wireRule{Type: string(RuleFixed), Amount: json.Number(r.Amount.String())}
	default:
		return &wireRule{Type: string(r.Kind), Key: r.Key}
	}
}

// canonical strips insignificant trailing zeros so equal amounts compare equal
// structurally after a Marshal/Parse round trip.
func canonical(d decimal.Decimal) decimal.Decimal {
	return decimal.RequireFromString(d.String())
}

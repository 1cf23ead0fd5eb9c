package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/jobs"
)

const rentTemplate = `
description: rent
default_context:
  rent: "1500"
lines:
  - account_id: 610
    debit: {type: context, key: rent}
  - account_id: 210
    credit: {type: context, key: rent}
`

func TestCheckTemplateWritesCanonicalForm(t *testing.T) {
	out := new(bytes.Buffer)
	require.NoError(t, CheckTemplate(strings.NewReader(rentTemplate), out, nil))

	var report TemplateReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	require.Contains(t, report.Canonical, `"account_id":610`)
	require.Empty(t, report.Lines)
}

func TestCheckTemplateResolvesOverrides(t *testing.T) {
	out := new(bytes.Buffer)
	require.NoError(t, CheckTemplate(strings.NewReader(rentTemplate), out, map[string]string{"rent": "99.999"}))

	var report TemplateReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	require.Len(t, report.Lines, 2)
	require.Equal(t, "100", report.Lines[0].Debit.String())
	require.Equal(t, "100", report.Lines[1].Credit.String())
}

func TestCheckTemplateReportsParseErrors(t *testing.T) {
	err := CheckTemplate(strings.NewReader(`{"lines": [`), new(bytes.Buffer), nil)
	require.ErrorIs(t, err, shared.ErrTemplateParse)
}

func TestParseContext(t *testing.T) {
	ctx, err := ParseContext([]string{"amount=150.5", " rate = 2 "})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"amount": "150.5", "rate": "2"}, ctx)

	ctx, err = ParseContext(nil)
	require.NoError(t, err)
	require.Nil(t, ctx)

	_, err = ParseContext([]string{"novalue"})
	require.Error(t, err)
	_, err = ParseContext([]string{"=5"})
	require.Error(t, err)
}

func TestExecuteRejectsDuplicateReference(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewJobsCLI(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	payload := jobs.CompoundExecutePayload{DefinitionID: 7, ExecutorID: 1, Reference: "RENT-2024-03"}
	info, err := c.Execute(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskCompoundExecute, info.Type)

	_, err = c.Execute(context.Background(), payload)
	require.ErrorIs(t, err, asynq.ErrTaskIDConflict)
}

func TestNewJobsCLIRequiresAddress(t *testing.T) {
	_, err := NewJobsCLI(" ")
	require.Error(t, err)
}

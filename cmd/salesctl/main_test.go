package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunDiscount(t *testing.T) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := run(context.Background(), []string{"discount", "-mode", "additive", "-d1", "10", "-d2", "20", "-d3", "5"}, stdout, stderr)
	require.Zero(t, code, stderr.String())
	require.Equal(t, "additive 10% 20% 5% -> 35%\n", stdout.String())
}

func TestRunDiscountUnknownMode(t *testing.T) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := run(context.Background(), []string{"discount", "-mode", "stacked"}, stdout, stderr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), `unknown discounting mode "stacked"`)
}

func TestRunUsage(t *testing.T) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	require.Equal(t, 2, run(context.Background(), nil, stdout, stderr))
	require.Contains(t, stderr.String(), "usage: salesctl")

	stderr.Reset()
	require.Equal(t, 2, run(context.Background(), []string{"bogus"}, stdout, stderr))
	require.Contains(t, stderr.String(), `unknown command "bogus"`)

	stderr.Reset()
	require.Equal(t, 2, run(context.Background(), []string{"discount", "-d1", "abc"}, stdout, stderr))
}

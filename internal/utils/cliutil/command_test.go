package cliutil

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCommandFlags(t *testing.T) {
	cmd := CreateCommand(CommandConfig{
		Use: "train",
		Flags: map[string]Flag{
			"target":    {Type: FlagTypeString, DefaultString: "label"},
			"trees":     {Type: FlagTypeInt, DefaultInt: 100, Shorthand: "n"},
			"seed":      {Type: FlagTypeInt64, DefaultInt64: 42},
			"test-size": {Type: FlagTypeFloat64, DefaultFloat64: 0.2},
			"verbose":   {Type: FlagTypeBool, DefaultBool: true},
		},
	}, zerolog.Nop())

	target, err := cmd.Flags().GetString("target")
	require.NoError(t, err)
	assert.Equal(t, "label", target)

	trees, err := cmd.Flags().GetInt("trees")
	require.NoError(t, err)
	assert.Equal(t, 100, trees)
	assert.Equal(t, "n", cmd.Flags().Lookup("trees").Shorthand)

	seed, err := cmd.Flags().GetInt64("seed")
	require.NoError(t, err)
	assert.Equal(t, int64(42), seed)

	size, err := cmd.Flags().GetFloat64("test-size")
	require.NoError(t, err)
	assert.Equal(t, 0.2, size)

	verbose, err := cmd.Flags().GetBool("verbose")
	require.NoError(t, err)
	assert.True(t, verbose)
	assert.True(t, cmd.SilenceUsage)
}

func TestExecuteCommand(t *testing.T) {
	var got []string
	cmd := CreateCommand(CommandConfig{
		Use:  "predict",
		Args: cobra.ExactArgs(2),
		RunFunc: func(cmd *cobra.Command, args []string) error {
			got = args
			return nil
		},
	}, zerolog.Nop())

	cmd.SetArgs([]string{"model", "{}"})
	require.NoError(t, ExecuteCommand(context.Background(), cmd))
	assert.Equal(t, []string{"model", "{}"}, got)

	cmd.SetArgs([]string{"model"})
	assert.Error(t, ExecuteCommand(context.Background(), cmd))
}

func TestExecuteCommandPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	cmd := CreateCommand(CommandConfig{
		Use:     "fail",
		RunFunc: func(*cobra.Command, []string) error { return boom },
	}, zerolog.Nop())
	cmd.SetArgs([]string{})
	cmd.SilenceErrors = true

	assert.ErrorIs(t, ExecuteCommand(context.Background(), cmd), boom)
}

func TestRequiredFlag(t *testing.T) {
	cmd := CreateCommand(CommandConfig{
		Use:   "train",
		Flags: map[string]Flag{"model": {Type: FlagTypeString, Required: true}},
	}, zerolog.Nop())
	cmd.SetArgs([]string{})
	cmd.SilenceErrors = true

	assert.ErrorContains(t, ExecuteCommand(context.Background(), cmd), "model")
}

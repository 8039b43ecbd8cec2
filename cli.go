package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/robalobadob/zoltar/internal/commitment"
	"github.com/robalobadob/zoltar/internal/config"
	"github.com/robalobadob/zoltar/internal/game"
	"github.com/robalobadob/zoltar/internal/httpserver"
	"github.com/robalobadob/zoltar/internal/words"
)

func newTokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an operator token signed with OPERATOR_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tok, exp, err := httpserver.SignOperatorToken(cfg.OperatorSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func newCommitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commit <word>...",
		Short: "Print the commitment published for each secret",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, a := range args {
				s := game.NormalizeSecret(a)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", commitment.Of(s).Hex(), s)
			}
			return nil
		},
	}
}

func newWordsCmd() *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "words",
		Short: "Show the loaded word lists",
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := words.Load()
			if err != nil {
				return err
			}
			stats := sel.Stats()
			for _, d := range words.Tiers {
				fmt.Fprintf(cmd.OutOrStdout(), "%-6s %d\n", d, stats[d])
			}
			if list {
				all := sel.Words()
				sort.Strings(all)
				for _, w := range all {
					fmt.Fprintln(cmd.OutOrStdout(), w)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "print every word")
	return cmd
}

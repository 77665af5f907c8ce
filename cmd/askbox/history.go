package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"askbox/internal/domain"
)

var errNoPersistence = errors.New("history persistence is disabled (session.persist: false)")

type historyOptions struct {
	session string
	json    bool
}

func newHistoryCmd(root *rootOptions) *cobra.Command {
	opts := &historyOptions{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the stored conversation history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), appOptions{configPath: root.configPath, sessionKey: opts.session})
			if err != nil {
				return err
			}
			defer a.Close()
			if a.store == nil {
				return errNoPersistence
			}
			return printHistory(cmd.OutOrStdout(), a.recorder.History(), opts.json)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.session, "session", "", "history session key; overrides session.key")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print turns as JSON")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "clear",
			Short: "Delete the stored history of the session",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := newApp(cmd.Context(), appOptions{configPath: root.configPath, sessionKey: opts.session})
				if err != nil {
					return err
				}
				defer a.Close()
				if a.store == nil {
					return errNoPersistence
				}
				if err := a.recorder.Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared history for session %q\n", a.cfg.Session.Key)
				return nil
			},
		},
		&cobra.Command{
			Use:   "sessions",
			Short: "List session keys with stored history",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := newApp(cmd.Context(), appOptions{configPath: root.configPath})
				if err != nil {
					return err
				}
				defer a.Close()
				if a.store == nil {
					return errNoPersistence
				}
				keys, err := a.store.Sessions(cmd.Context())
				if err != nil {
					return err
				}
				for _, k := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return nil
			},
		},
	)
	return cmd
}

func printHistory(w io.Writer, turns []domain.ConversationTurn, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if turns == nil {
			turns = []domain.ConversationTurn{}
		}
		return enc.Encode(turns)
	}
	if len(turns) == 0 {
		fmt.Fprintln(w, "No history.")
		return nil
	}
	for _, t := range turns {
		fmt.Fprintf(w, "[%s] %s:\n%s\n\n",
			t.Timestamp.Local().Format("2006-01-02 15:04"),
			t.Role,
			indent(t.Content, "  "),
		)
	}
	return nil
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

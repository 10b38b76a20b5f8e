package main

import (
	"bufio"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"auto_wordpress_article_publisher/config"
	"auto_wordpress_article_publisher/history"
	"auto_wordpress_article_publisher/publisher"
)

const slotLayout = "Monday 2 January 2006 at 15:04 MST"

func newSlotCmd(load loader) *cobra.Command {
	var nowFlag string

	cmd := &cobra.Command{
		Use:   "slot",
		Short: "Show the next free publication slot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.cfg.Validate(config.PartWordPress); err != nil {
				return err
			}

			var now func() time.Time
			if nowFlag != "" {
				t, err := time.Parse(time.RFC3339, nowFlag)
				if err != nil {
					return fmt.Errorf("--now: %w", err)
				}
				now = func() time.Time { return t }
			}
			wp, err := buildWordPress(a.cfg, &http.Client{Timeout: upstreamTimeout}, a.logger)
			if err != nil {
				return err
			}
			resolver, err := buildResolver(a.cfg, wp, a.logger, now)
			if err != nil {
				return err
			}
			res, err := resolver.Next(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "next slot: %s (%s)\n", res.At.In(a.cfg.Schedule.Location()).Format(slotLayout), publisher.FormatDateGMT(res.At))
			fmt.Fprintf(out, "reserved days: %d, unparseable records: %d\n", res.Reserved, res.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&nowFlag, "now", "", "resolve as if the current time were this RFC 3339 timestamp")
	return cmd
}

func newPublishCmd(load loader) *cobra.Command {
	var (
		params publisher.MarkdownParams
		atFlag string
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a local markdown file, scheduled on the next free slot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.cfg.Validate(config.PartWordPress); err != nil {
				return err
			}
			ctx := cmd.Context()

			wp, err := buildWordPress(a.cfg, &http.Client{Timeout: upstreamTimeout}, a.logger)
			if err != nil {
				return err
			}
			var at time.Time
			if atFlag != "" {
				at, err = time.Parse(time.RFC3339, atFlag)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
			} else {
				resolver, err := buildResolver(a.cfg, wp, a.logger, nil)
				if err != nil {
					return err
				}
				res, err := resolver.Next(ctx)
				if err != nil {
					return err
				}
				at = res.At
			}

			pub, err := publisher.New(wp, a.logger.WithPrefix("publisher"))
			if err != nil {
				return err
			}
			a.logger.Info("publishing markdown", "title", params.Title, "md", params.MarkdownPath, "cover", params.CoverPath)
			post, err := pub.PublishMarkdown(ctx, params, at)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\nscheduled for %s\n", post.Link, at.In(a.cfg.Schedule.Location()).Format(slotLayout))
			return nil
		},
	}
	cmd.Flags().StringVar(&params.MarkdownPath, "md", "", "path to the markdown file")
	cmd.Flags().StringVar(&params.Title, "title", "", "post title (default: first heading of the markdown)")
	cmd.Flags().StringVar(&params.CoverPath, "cover", "", "path to a featured image")
	cmd.Flags().StringVar(&params.Excerpt, "excerpt", "", "post excerpt (default: derived from the markdown)")
	cmd.Flags().StringVar(&atFlag, "at", "", "publish at this RFC 3339 time instead of the next free slot")
	_ = cmd.MarkFlagRequired("md")
	_ = cmd.MarkFlagRequired("cover")
	return cmd
}

func newHistoryCmd(load loader) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the publication ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.Close()
			if !a.cfg.HistoryEnabled() {
				return errors.New("history is disabled (HISTORY_DSN=off)")
			}
			if limit <= 0 {
				return errors.New("--limit must be positive")
			}
			store, err := history.Open(cmd.Context(), a.cfg.History.DSN)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			loc := a.cfg.Schedule.Location()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "CREATED\tSTATE\tSCHEDULED\tTOPIC\tLINK / ERROR")
			for _, e := range entries {
				scheduled := "-"
				if !e.ScheduledAt.IsZero() {
					scheduled = e.ScheduledAt.In(loc).Format("2006-01-02 15:04")
				}
				detail := e.Link
				if e.Error != "" {
					detail = e.Error
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.CreatedAt.In(loc).Format("2006-01-02 15:04"), e.State, scheduled, e.Topic, detail)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of runs to show")
	return cmd
}

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage credentials stored in the OS keyring",
	}

	cmd.AddCommand(&cobra.Command{
		Use:       "set NAME [VALUE]",
		Short:     "Store a secret; the value is read from stdin when omitted",
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: config.SecretNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := ""
			if len(args) == 2 {
				value = args[1]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read secret from stdin: %w", err)
				}
				value = strings.TrimSpace(line)
			}
			if err := (config.Keyring{}).Set(args[0], value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", args[0])
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:       "delete NAME",
		Short:     "Remove a secret",
		Args:      cobra.ExactArgs(1),
		ValidArgs: config.SecretNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := (config.Keyring{}).Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the secret names the bot reads",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, n := range config.SecretNames() {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
		},
	})
	return cmd
}

// Command admin manages the community groups posts can be filed under.
//
//	admin group create -title Cats -slug cats [-description "..."]
//	admin group delete -slug cats
//	admin group list
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"gorm.io/gorm"

	"yatube/internal/config"
	"yatube/internal/db"
	"yatube/internal/models"
)

var errUsage = errors.New("usage: admin group create|delete|list [flags]")

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	dsn := cfg.DBPath
	if cfg.DBDriver == "postgres" {
		dsn = cfg.DatabaseURL
	}
	database, err := db.Open(cfg.DBDriver, dsn)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer db.Close(database)

	if err := run(database, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func run(gdb *gorm.DB, args []string, out io.Writer) error {
	if len(args) < 2 || args[0] != "group" {
		return errUsage
	}
	switch args[1] {
	case "create":
		fs := flag.NewFlagSet("group create", flag.ContinueOnError)
		fs.SetOutput(out)
		title := fs.String("title", "", "group title (required)")
		slug := fs.String("slug", "", "unique URL slug (required)")
		description := fs.String("description", "", "group description")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if *title == "" || *slug == "" {
			return fmt.Errorf("%w: -title and -slug are required", errUsage)
		}
		g, err := models.CreateGroup(gdb, *title, *slug, *description)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "created group %d %s\n", g.ID, g.Slug)

	case "delete":
		fs := flag.NewFlagSet("group delete", flag.ContinueOnError)
		fs.SetOutput(out)
		slug := fs.String("slug", "", "slug of the group to delete (required)")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if *slug == "" {
			return fmt.Errorf("%w: -slug is required", errUsage)
		}
		if err := models.DeleteGroup(gdb, *slug); err != nil {
			return fmt.Errorf("delete %s: %w", *slug, err)
		}
		fmt.Fprintf(out, "deleted group %s\n", *slug)

	case "list":
		groups, err := models.ListGroups(gdb)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSLUG\tTITLE")
		for _, g := range groups {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", g.ID, g.Slug, g.Title)
		}
		return tw.Flush()

	default:
		return errUsage
	}
	return nil
}

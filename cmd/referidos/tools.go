package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dukerupert/referidos/internal/config"
	"github.com/dukerupert/referidos/internal/directus"
	"github.com/dukerupert/referidos/internal/vault"
)

func pingCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the Directus server is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load(cmd)
			if err != nil {
				return err
			}
			client := directus.New(cfg.Directus, nil, logger.With("component", "directus"))
			return runPing(cmd.Context(), cmd.OutOrStdout(), client, cfg.Directus.URL)
		},
	}
}

func runPing(ctx context.Context, out io.Writer, client *directus.Client, url string) error {
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("%s: %s", url, directus.UserMessage(err))
	}
	fmt.Fprintf(out, "Conexión exitosa con %s\n", url)
	return nil
}

func verifyCmd(g *globalFlags) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Log in and check that the collection has the expected fields",
		Long: `Verify logs in with the given credentials and compares the keys of the
first record in the collection with the fields the dashboard needs.

Credentials default to REFERIDOS_EMAIL and REFERIDOS_PASSWORD.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load(cmd)
			if err != nil {
				return err
			}
			if email == "" {
				email = os.Getenv("REFERIDOS_EMAIL")
			}
			if password == "" {
				password = os.Getenv("REFERIDOS_PASSWORD")
			}
			client := directus.New(cfg.Directus, nil, logger.With("component", "directus"))
			return runVerify(cmd.Context(), cmd.OutOrStdout(), client, cfg.Directus.Collection, email, password)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Operator email")
	cmd.Flags().StringVar(&password, "password", "", "Operator password")
	return cmd
}

var errMissingFields = errors.New("collection is missing required fields")

func runVerify(ctx context.Context, out io.Writer, client *directus.Client, collection, email, password string) error {
	if email == "" || password == "" {
		return errors.New("email and password are required")
	}
	res, err := client.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login: %s", directus.UserMessage(err))
	}
	fmt.Fprintf(out, "Sesión iniciada como %s\n", res.User.DisplayName(email))

	keys, err := client.Fields(ctx, res.Token)
	if err != nil {
		return fmt.Errorf("fields: %s", directus.UserMessage(err))
	}
	if keys == nil {
		fmt.Fprintf(out, "La colección %s está vacía; no se pueden verificar los campos\n", collection)
		return nil
	}
	fmt.Fprintf(out, "Campos en %s: %s\n", collection, strings.Join(keys, ", "))

	if missing := directus.MissingFields(keys); len(missing) > 0 {
		fmt.Fprintf(out, "Faltan campos: %s\n", strings.Join(missing, ", "))
		return errMissingFields
	}
	fmt.Fprintln(out, "Estructura de datos correcta")
	return nil
}

func secretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "secret",
		Short: "Generate a value for server.secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := vault.GenerateSecret()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s)
			return nil
		},
	}
}

func configCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "referidos.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.DefaultConfig().SaveToFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	getCmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print the effective value of a dotted key, e.g. app.validation.min_length.phone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.load(cmd)
			if err != nil {
				return err
			}
			v := cfg.Lookup(args[0], nil)
			if v == nil {
				return fmt.Errorf("unknown key %q", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
	cmd.AddCommand(initCmd, getCmd)
	return cmd
}

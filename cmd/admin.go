/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/libranet/apiserver/config"
	"github.com/libranet/apiserver/internal/services"
	"github.com/libranet/apiserver/types"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	adminName     string
	adminEmail    string
	adminPassword string
)

// adminCmd represents the admin command
var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage administrator accounts",
}

var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a verified ADMIN account",
	Long: `Create a verified ADMIN account. The password is read from
ADMIN_PASSWORD or prompted for when stdin is a terminal. Usage:

	libranet admin create --name "Head Librarian" --email admin@example.com
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readAdminPassword(cmd)
		if err != nil {
			return err
		}

		cfg := config.LoadConfig()
		svc, dbConn, err := openServices(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer dbConn.Close()
		defer svc.Close()

		user, err := svc.Users.CreateVerified(cmd.Context(), services.RegisterInput{
			Name:     adminName,
			Email:    adminEmail,
			Password: password,
			Role:     types.RoleAdmin,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created admin %d (%s), card %s\n", user.ID, user.Email, user.LibraryCardNumber)
		return nil
	},
}

func readAdminPassword(cmd *cobra.Command) (string, error) {
	if adminPassword != "" {
		return adminPassword, nil
	}
	if env := os.Getenv("ADMIN_PASSWORD"); env != "" {
		return env, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("password required: set ADMIN_PASSWORD or run from a terminal")
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(raw), "\r\n"), nil
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminCreateCmd)

	adminCreateCmd.Flags().StringVar(&adminName, "name", "Administrator", "display name")
	adminCreateCmd.Flags().StringVar(&adminEmail, "email", "", "login email")
	adminCreateCmd.Flags().StringVar(&adminPassword, "password", "", "password (prefer ADMIN_PASSWORD)")
	_ = adminCreateCmd.MarkFlagRequired("email")
}
